// Package config loads server configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries every externally tunable value the server needs. The match
// threshold is deliberately configuration, not a constant: historical
// deployments disagreed on its value and neither literal carries intent.
type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	MongoURI  string `envconfig:"MONGODB_URI" required:"true"`
	MongoDB   string `envconfig:"MONGODB_DATABASE" default:"mirrormatch"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// TokenTTL controls how long issued session tokens stay valid.
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// MatchThreshold is the exclusive upper bound on similarity distance for
	// a candidate to count as a match.
	MatchThreshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.68"`

	// ScorerCommand is the executable invoked to score a reference image
	// against a directory of candidates; ScorerScript is its first argument
	// (empty when the command is self-contained).
	ScorerCommand string        `envconfig:"SCORER_COMMAND" default:"python3"`
	ScorerScript  string        `envconfig:"SCORER_SCRIPT" default:"compare.py"`
	ScorerTimeout time.Duration `envconfig:"SCORER_TIMEOUT" default:"2m"`

	// UploadsDir holds profile photos; AIFacesDir holds the AI-generated
	// reference photos used as comparison sources.
	UploadsDir string `envconfig:"UPLOADS_DIR" default:"uploads"`
	AIFacesDir string `envconfig:"AI_FACES_DIR" default:"uploads/ai_faces"`

	// RateLimitRPM bounds requests per minute on the credential endpoints.
	RateLimitRPM int `envconfig:"RATE_LIMIT_RPM" default:"10"`
}

// Load reads configuration from process environment variables.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
