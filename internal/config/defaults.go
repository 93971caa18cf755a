package config

// Classifier providers.
const (
	ProviderHeuristic = "heuristic"
	ProviderHTTP      = "http"
	ProviderGemini    = "gemini"
)

// Photo backends.
const (
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

const (
	defaultAddr                     = ":8080"
	defaultShutdownTimeoutSeconds   = 10
	defaultTokenTTLHours            = 24
	defaultDatabasePath             = "najdeno.db"
	defaultLogLevel                 = "info"
	defaultMatchTimeoutSeconds      = 15
	defaultMaxCandidates            = 200
	defaultConcurrency              = 4
	defaultClassifierTimeoutSeconds = 10
	defaultThreshold                = 0.45
	defaultMaxRetries               = 3
	defaultGeminiModel              = "gemini-2.5-flash"
	defaultMaxUploadMB              = 10
	defaultMaxDimension             = 1024
	defaultThumbDimension           = 256
	defaultPresignMinutes           = 15
	defaultS3Region                 = "us-east-1"
	defaultMailTimeoutSeconds       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:                   defaultAddr,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
			TokenTTLHours:          defaultTokenTTLHours,
			AllowRegistration:      true,
		},
		Database: Database{
			Path: defaultDatabasePath,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
		Matching: Matching{
			TimeoutSeconds:           defaultMatchTimeoutSeconds,
			MaxCandidates:            defaultMaxCandidates,
			Concurrency:              defaultConcurrency,
			ClassifierTimeoutSeconds: defaultClassifierTimeoutSeconds,
		},
		Classifier: Classifier{
			Provider:   ProviderHeuristic,
			Threshold:  defaultThreshold,
			Model:      defaultGeminiModel,
			MaxRetries: defaultMaxRetries,
		},
		Photos: Photos{
			Backend:        BackendSQLite,
			MaxUploadMB:    defaultMaxUploadMB,
			MaxDimension:   defaultMaxDimension,
			ThumbDimension: defaultThumbDimension,
			S3: S3{
				Region:         defaultS3Region,
				PresignMinutes: defaultPresignMinutes,
			},
		},
		Mail: Mail{
			RequestTimeoutSeconds: defaultMailTimeoutSeconds,
		},
	}
}
