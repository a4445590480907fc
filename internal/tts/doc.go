// Package tts turns affirmations into audio fragments.
//
// A Provider performs one synthesis call: HTTPProvider talks to a JSON speech
// service and CommandProvider runs a local binary through the command
// executor. Stage fans calls out with a concurrency bound, writes each
// fragment atomically into the job workspace, and returns fragments in input
// order. Failures surface as *SynthesisError, which matches
// services.ErrSynthesis.
package tts
