package config

import "slices"

const redacted = "***"

// RedactedConfig returns a copy of cfg with secrets masked, for logging.
// Slices are cloned so the copy can be mutated freely.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.LLM.APIKey)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.TelegramToken)
	redact(&out.Server.APIKey)

	out.Kafka.Brokers = slices.Clone(cfg.Kafka.Brokers)
	out.Scanner.OtherKeywords = slices.Clone(cfg.Scanner.OtherKeywords)
	out.Scanner.Enabled = slices.Clone(cfg.Scanner.Enabled)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
