package config

const (
	defaultInboxDir             = "~/inboxwatch/InBox"
	defaultWorkDir              = "~/inboxwatch/DoBox"
	defaultResultsDir           = "~/inboxwatch/OutBox"
	defaultArchiveDir           = "~/inboxwatch/DoneBox"
	defaultErrorDir             = "~/inboxwatch/ErrorBox"
	defaultLogDir               = "~/.local/share/inboxwatch/logs"
	defaultStateDir             = "~/.local/share/inboxwatch"
	defaultWatchExtension       = ".bin"
	defaultDestinationExtension = ".h5"
	defaultDecoderProgram       = "decode"
	defaultDecoderInputFlag     = "-f"
	defaultDecoderOutputFlag    = "-o"
	defaultTickIntervalSeconds  = 10
	defaultStabilizationSeconds = 60
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	decoderProgramEnv           = "INBOXWATCH_DECODER"
	defaultConfigPathValue      = "~/.config/inboxwatch/config.toml"
	projectConfigFile           = "inboxwatch.toml"
)

func defaultDecoderFlags() []string {
	return []string{"-d", "1", "-u", "1"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:   defaultInboxDir,
			WorkDir:    defaultWorkDir,
			ResultsDir: defaultResultsDir,
			ArchiveDir: defaultArchiveDir,
			ErrorDir:   defaultErrorDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
		},
		Watch: Watch{
			Extension:            defaultWatchExtension,
			DestinationExtension: defaultDestinationExtension,
		},
		Decoder: Decoder{
			Program:    defaultDecoderProgram,
			Flags:      defaultDecoderFlags(),
			InputFlag:  defaultDecoderInputFlag,
			OutputFlag: defaultDecoderOutputFlag,
		},
		Scheduler: Scheduler{
			TickInterval:           defaultTickIntervalSeconds,
			StabilizationThreshold: defaultStabilizationSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		History: History{
			Enabled: true,
		},
	}
}
