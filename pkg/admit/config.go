package admit

// Defaults for the admission configuration. These match the production
// values the engine was tuned with.
const (
	DefaultInitialCredits              = 320
	DefaultCreditsPerConversation      = 10
	DefaultUserMaxRequests             = 25
	DefaultUserWindowSeconds           = 10800
	DefaultSubscribedUserMaxRequests   = 50
	DefaultSubscribedUserWindowSeconds = 10800
	DefaultInviteRewardWindowHours     = 6
)

// Config holds the admission policy knobs. It is read-only from the
// engine's point of view: a ConfigSource supplies a fresh snapshot on
// every operation so values can be hot-reloaded without restarting.
type Config struct {
	// InitialCredits is the one-time grant applied on first use.
	InitialCredits int

	// CreditsPerConversation is the fixed cost per billed action,
	// debited from non-subscribed accounts only.
	CreditsPerConversation int

	// UserMaxRequests and UserWindowSeconds size the free-tier token
	// bucket.
	UserMaxRequests   int
	UserWindowSeconds int

	// SubscribedUserMaxRequests and SubscribedUserWindowSeconds size
	// the bucket for accounts with an active standard subscription.
	SubscribedUserMaxRequests   int
	SubscribedUserWindowSeconds int

	// OperatorUserIDs lists the operators allowed to adjust credits
	// administratively.
	OperatorUserIDs []string

	// InviteRewardWindowHours bounds how long after being granted an
	// invite reward can still be redeemed.
	InviteRewardWindowHours int
}

// DefaultConfig returns a Config populated with the default policy.
func DefaultConfig() Config {
	return Config{
		InitialCredits:              DefaultInitialCredits,
		CreditsPerConversation:      DefaultCreditsPerConversation,
		UserMaxRequests:             DefaultUserMaxRequests,
		UserWindowSeconds:           DefaultUserWindowSeconds,
		SubscribedUserMaxRequests:   DefaultSubscribedUserMaxRequests,
		SubscribedUserWindowSeconds: DefaultSubscribedUserWindowSeconds,
		InviteRewardWindowHours:     DefaultInviteRewardWindowHours,
	}
}

// withDefaults fills zero values with the defaults so partially
// specified configs behave sensibly.
func (c Config) withDefaults() Config {
	if c.InitialCredits == 0 {
		c.InitialCredits = DefaultInitialCredits
	}
	if c.CreditsPerConversation == 0 {
		c.CreditsPerConversation = DefaultCreditsPerConversation
	}
	if c.UserMaxRequests == 0 {
		c.UserMaxRequests = DefaultUserMaxRequests
	}
	if c.UserWindowSeconds == 0 {
		c.UserWindowSeconds = DefaultUserWindowSeconds
	}
	if c.SubscribedUserMaxRequests == 0 {
		c.SubscribedUserMaxRequests = DefaultSubscribedUserMaxRequests
	}
	if c.SubscribedUserWindowSeconds == 0 {
		c.SubscribedUserWindowSeconds = DefaultSubscribedUserWindowSeconds
	}
	if c.InviteRewardWindowHours == 0 {
		c.InviteRewardWindowHours = DefaultInviteRewardWindowHours
	}
	return c
}

// bucketParams resolves the token bucket sizing for the effective tier.
func (c Config) bucketParams(subscribed bool) (maxTokens, windowSeconds int) {
	if subscribed {
		return c.SubscribedUserMaxRequests, c.SubscribedUserWindowSeconds
	}
	return c.UserMaxRequests, c.UserWindowSeconds
}

// ConfigSource supplies the current configuration snapshot. The engine
// calls Current once per operation, so implementations may hot-reload.
type ConfigSource interface {
	Current() Config
}

// StaticSource is a ConfigSource that always returns the same Config.
type StaticSource struct {
	cfg Config
}

// NewStaticSource wraps a fixed Config, filling zero fields with
// defaults.
func NewStaticSource(cfg Config) *StaticSource {
	return &StaticSource{cfg: cfg.withDefaults()}
}

// Current implements ConfigSource.
func (s *StaticSource) Current() Config {
	return s.cfg
}
