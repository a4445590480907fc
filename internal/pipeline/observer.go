package pipeline

import "context"

// Observer is notified of every state transition of a job.
type Observer interface {
	OnTransition(ctx context.Context, jobID string, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, jobID string, t Transition)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(ctx context.Context, jobID string, t Transition) {
	f(ctx, jobID, t)
}

// Observers fans a transition out to several observers in order.
type Observers []Observer

// OnTransition implements Observer.
func (o Observers) OnTransition(ctx context.Context, jobID string, t Transition) {
	for _, observer := range o {
		if observer != nil {
			observer.OnTransition(ctx, jobID, t)
		}
	}
}
