package tui

const (
	// Layout Offsets and Padding
	DefaultWidth           = 80
	MaxCardWidth           = 100
	ProgressBarWidthOffset = 4
	DefaultPaddingX        = 1
	DefaultPaddingY        = 0

	// Speed graph
	GraphHeight     = 4
	MaxSpeedSamples = 200

	// Status lines shown under the progress bar
	MaxStatusLines = 4
)
