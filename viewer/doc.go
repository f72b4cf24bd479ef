/*
Package viewer keeps a rendered score and its audio pipeline in sync.

The Controller holds the score settings and the note body. Every edit goes
through the Controller: it assembles the notation document, asks the
Renderer for a new VisualScore and decides whether the audio pipeline (audio
context, synth and playback controller) has to be torn down and built again.
Pipelines are always released through PipelineHandle.Reap before a new one is
built, so that there is never more than one live pipeline per Controller.

Playback position callbacks from the engine are routed by a CursorRouter into
a HighlightRegistry; scroll requests, state changes and alerts are sent to the
presentation layer through the Broker.
*/
package viewer
