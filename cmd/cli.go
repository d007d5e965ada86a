package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"beatbox/internal/config"
)

// Options carries the parsed command line state. Flag values are applied on
// top of the YAML config only when the user actually set them.
type Options struct {
	ConfigPath string
	Command    string // one-off command ("list"), empty to run the trainer
	Run        bool

	deviceID        int
	sampleRate      uint32
	framesPerBuffer int
	bpm             uint32
	record          bool
	outputFile      string
	wsAddr          string
	verbose         bool

	flags *pflag.FlagSet
}

// ParseArgs parses os.Args into Options.
func ParseArgs() (*Options, error) {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:           "beatbox",
		Short:         "Real-time beatbox trainer with onset detection and hit classification",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Run = true
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "f", "",
		"Path to YAML config file. Default searches beatbox.yaml in the working directory.")
	pf.IntVarP(&opts.deviceID, "device", "d", config.MinDeviceID,
		"Input device ID. Use 'list' to see available devices.")
	pf.Uint32VarP(&opts.sampleRate, "sample-rate", "s", 48000,
		"Sample rate in Hertz (Hz)")
	pf.IntVarP(&opts.framesPerBuffer, "frames-per-buffer", "b", 512,
		"Audio frames per buffer (affects latency)")
	pf.Uint32Var(&opts.bpm, "bpm", 120,
		"Metronome tempo in beats per minute, 0 disables the click and timing feedback")
	pf.BoolVarP(&opts.record, "record", "r", false,
		"Record the input stream to a WAV file")
	pf.StringVarP(&opts.outputFile, "output", "o", "",
		"Recording file name. Default is beatbox-MM-DD-YYYY-HHMMSS.wav")
	pf.StringVar(&opts.wsAddr, "listen", "",
		"WebSocket feedback server address, e.g. 127.0.0.1:8765")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging")
	opts.flags = pf

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Apply overlays explicitly set flags onto cfg.
func (o *Options) Apply(cfg *config.Config) {
	if o.flags == nil {
		return
	}
	if o.flags.Changed("device") {
		cfg.Audio.InputDevice = o.deviceID
	}
	if o.flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = o.sampleRate
	}
	if o.flags.Changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = o.framesPerBuffer
	}
	if o.flags.Changed("bpm") {
		cfg.Metronome.BPM = o.bpm
	}
	if o.flags.Changed("record") {
		cfg.Recording.Enabled = o.record
	}
	if o.flags.Changed("output") {
		cfg.Recording.OutputFile = o.outputFile
	}
	if o.flags.Changed("listen") {
		cfg.Transport.WebSocketAddr = o.wsAddr
		cfg.Transport.WebSocketEnabled = true
	}
	if o.flags.Changed("verbose") && o.verbose {
		cfg.LogLevel = "debug"
	}
}
