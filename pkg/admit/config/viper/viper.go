// Package viperconfig provides an admit.ConfigSource backed by a viper
// instance, with hot reload on config file changes.
package viperconfig

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// Keys recognized in the config file.
const (
	KeyInitialCredits              = "admit.initial_credits"
	KeyCreditsPerConversation      = "admit.credits_per_conversation"
	KeyUserMaxRequests             = "admit.user_max_requests"
	KeyUserWindowSeconds           = "admit.user_window_seconds"
	KeySubscribedUserMaxRequests   = "admit.subscribed_user_max_requests"
	KeySubscribedUserWindowSeconds = "admit.subscribed_user_window_seconds"
	KeyOperatorUserIDs             = "admit.operator_user_ids"
	KeyInviteRewardWindowHours     = "admit.invite_reward_window_hours"
)

// Source implements admit.ConfigSource on top of viper. The current
// snapshot is swapped atomically when the underlying file changes, so
// Current never blocks the admission path.
type Source struct {
	v       *viper.Viper
	current atomic.Value // admit.Config
}

// New builds a Source from a viper instance. The instance should
// already have its config file read; unset keys fall back to the
// engine defaults. Watch the file for changes with Watch.
func New(v *viper.Viper) *Source {
	if v == nil {
		v = viper.New()
	}
	s := &Source{v: v}
	s.current.Store(s.snapshot())
	return s
}

// Watch starts watching the config file and reloads the snapshot on
// every change. Safe to call once after New.
func (s *Source) Watch() {
	s.v.OnConfigChange(func(fsnotify.Event) {
		s.current.Store(s.snapshot())
	})
	s.v.WatchConfig()
}

// Current implements admit.ConfigSource.
func (s *Source) Current() admit.Config {
	return s.current.Load().(admit.Config)
}

// Reload re-reads the snapshot from the viper instance. Useful when the
// instance is updated programmatically rather than from a file.
func (s *Source) Reload() {
	s.current.Store(s.snapshot())
}

func (s *Source) snapshot() admit.Config {
	cfg := admit.Config{
		InitialCredits:              s.v.GetInt(KeyInitialCredits),
		CreditsPerConversation:      s.v.GetInt(KeyCreditsPerConversation),
		UserMaxRequests:             s.v.GetInt(KeyUserMaxRequests),
		UserWindowSeconds:           s.v.GetInt(KeyUserWindowSeconds),
		SubscribedUserMaxRequests:   s.v.GetInt(KeySubscribedUserMaxRequests),
		SubscribedUserWindowSeconds: s.v.GetInt(KeySubscribedUserWindowSeconds),
		OperatorUserIDs:             s.v.GetStringSlice(KeyOperatorUserIDs),
		InviteRewardWindowHours:     s.v.GetInt(KeyInviteRewardWindowHours),
	}
	return cfg
}
