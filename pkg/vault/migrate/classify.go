package migrate

import "strings"

// DefaultSecretPatterns are the key-name substrings that mark an entry as
// secret-like. Matching is case-insensitive on the upper-cased key.
var DefaultSecretPatterns = []string{
	"PASSWORD", "TOKEN", "SECRET", "API_KEY", "PRIVATE_KEY",
	"ACCESS_KEY", "CREDENTIAL", "SIGNING_KEY", "ENCRYPTION_KEY",
	"DATABASE_URL", "REDIS_URL", "MONGO_URI", "SMTP_PASS",
	"AWS_SECRET", "STRIPE_KEY", "WEBHOOK_SECRET", "JWT_SECRET",
	"SESSION_SECRET", "MASTER_KEY", "PASSPHRASE", "DSN",
	"CONNECTION_STRING", "AUTH_KEY",
}

// Classification is the verdict for one entry, with the rule that produced
// it so scan output can explain itself.
type Classification struct {
	// Secret is true when the entry should be imported.
	Secret bool

	// Rule names what decided: "include-override", "exclude-override",
	// "name-pattern:<PATTERN>", "value-url-credentials", "value-base64",
	// "value-hex", or "no-match".
	Rule string
}

// Classifier decides which environment entries are secret-like. The
// heuristics misfire on both sides, so operators override per entry:
// Include forces an entry in, Exclude forces it out, and overrides always
// beat the heuristics.
type Classifier struct {
	patterns []string
	include  map[string]bool
	exclude  map[string]bool
}

// NewClassifier builds a classifier from name patterns. An empty pattern
// list falls back to DefaultSecretPatterns.
func NewClassifier(patterns []string) *Classifier {
	if len(patterns) == 0 {
		patterns = DefaultSecretPatterns
	}
	upper := make([]string, len(patterns))
	for i, p := range patterns {
		upper[i] = strings.ToUpper(p)
	}
	return &Classifier{
		patterns: upper,
		include:  map[string]bool{},
		exclude:  map[string]bool{},
	}
}

// Include forces the named keys to classify as secrets.
func (c *Classifier) Include(keys ...string) *Classifier {
	for _, k := range keys {
		c.include[k] = true
	}
	return c
}

// Exclude forces the named keys to classify as plain configuration.
// Exclusion wins over inclusion when a key appears in both.
func (c *Classifier) Exclude(keys ...string) *Classifier {
	for _, k := range keys {
		c.exclude[k] = true
	}
	return c
}

// Classify applies overrides, then the name patterns, then the value-shape
// heuristics.
func (c *Classifier) Classify(e Entry) Classification {
	if c.exclude[e.Key] {
		return Classification{Secret: false, Rule: "exclude-override"}
	}
	if c.include[e.Key] {
		return Classification{Secret: true, Rule: "include-override"}
	}

	upper := strings.ToUpper(e.Key)
	for _, p := range c.patterns {
		if strings.Contains(upper, p) {
			return Classification{Secret: true, Rule: "name-pattern:" + p}
		}
	}

	// Connection URL with embedded credentials.
	if strings.Contains(e.Value, "://") && strings.Contains(e.Value, "@") {
		return Classification{Secret: true, Rule: "value-url-credentials"}
	}
	// Hex is a subset of the base64 alphabet, so the hex rule runs first.
	if len(e.Value) > 32 && isHex(e.Value) {
		return Classification{Secret: true, Rule: "value-hex"}
	}
	// Long base64-looking value.
	if len(e.Value) > 20 && isBase64Like(e.Value) {
		return Classification{Secret: true, Rule: "value-base64"}
	}

	return Classification{Secret: false, Rule: "no-match"}
}

func isBase64Like(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '+', r == '/', r == '=':
		default:
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Candidate pairs an entry with its classification.
type Candidate struct {
	Entry          Entry
	Classification Classification
}

// Scan classifies every entry of an environment file. The result keeps
// file order and includes the non-secrets, so callers can render the full
// would-import picture.
func Scan(path string, c *Classifier) ([]Candidate, error) {
	entries, err := ParseEnvFile(path)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = NewClassifier(nil)
	}
	out := make([]Candidate, len(entries))
	for i, e := range entries {
		out[i] = Candidate{Entry: e, Classification: c.Classify(e)}
	}
	return out, nil
}

// Secrets filters candidates down to the accepted secret-like entries.
func Secrets(candidates []Candidate) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if c.Classification.Secret {
			out = append(out, c)
		}
	}
	return out
}
