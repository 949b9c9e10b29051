// Package decoder builds and launches the external measurement decoder.
//
// The decoder is an opaque program invoked once per stable inbox file as
//
//	<program> <flags...> <input_flag> <work_path> <output_flag> <output_path>
//
// Exit status 0 means success; anything else is a failure. Launching never
// blocks: ExecRunner starts the process and a background Wait feeds a done
// channel that Process.Poll inspects without waiting. Decoder stdout and
// stderr can be captured into a per-job log file.
package decoder
