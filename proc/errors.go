package proc

import (
	"errors"
	"fmt"

	"github.com/leeineian/cadence/sys"
)

// ErrorKind groups voice errors by who is expected to act on them.
type ErrorKind int

const (
	// KindUserState errors describe the caller's situation and are shown, not logged.
	KindUserState ErrorKind = iota
	KindPipeline
	KindConcurrency
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindUserState:
		return "user-state"
	case KindPipeline:
		return "pipeline"
	case KindConcurrency:
		return "concurrency"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

type Code string

// Error is the error type returned by every voice operation.
// errors.Is matches on Code, so wrapped instances still compare equal to the sentinels below.
type Error struct {
	Code      Code
	Kind      ErrorKind
	Ignorable bool
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

var (
	ErrNotConnected          = &Error{Code: "not_connected", Kind: KindUserState, Message: sys.ErrVoiceNotConnected}
	ErrAlreadyConnected      = &Error{Code: "already_connected", Kind: KindUserState, Message: sys.ErrVoiceAlreadyConnected}
	ErrUserNotInVoiceChannel = &Error{Code: "user_not_in_voice_channel", Kind: KindUserState, Message: sys.ErrVoiceUserNotInVoice}
	ErrUserNotInSameGuild    = &Error{Code: "user_not_in_same_guild", Kind: KindUserState, Message: sys.ErrVoiceUserOtherGuild}
	ErrUserNotInSameChannel  = &Error{Code: "user_not_in_same_channel", Kind: KindUserState, Message: sys.ErrVoiceUserOtherChannel}
	ErrUserNotInGuild        = &Error{Code: "user_not_in_guild", Kind: KindUserState, Message: sys.ErrVoiceUserNotInGuild}
	ErrNoTrackPlaying        = &Error{Code: "no_track_playing", Kind: KindUserState, Message: sys.ErrVoiceNoTrackPlaying}
	ErrNotRunningAudioLoop   = &Error{Code: "not_running_audio_loop", Kind: KindUserState, Message: sys.ErrVoiceLoopNotRunning}
	ErrMissingPermissions    = &Error{Code: "missing_permissions", Kind: KindUserState, Message: sys.ErrVoiceMissingPerms}
	ErrInvalidAutoplayState  = &Error{Code: "invalid_autoplay_state", Kind: KindUserState, Message: sys.ErrVoiceAutoplayState}
	ErrIndexOutOfRange       = &Error{Code: "index_out_of_range", Kind: KindUserState, Message: sys.ErrVoiceIndexOutOfRange}

	ErrExtractionFailed = &Error{Code: "extraction_failed", Kind: KindPipeline, Message: sys.ErrVoiceExtractionFailed}
	ErrDownloadFailed   = &Error{Code: "download_failed", Kind: KindPipeline, Message: sys.ErrVoiceDownloadFailed}
	ErrSearchFailed     = &Error{Code: "search_failed", Kind: KindPipeline, Message: sys.ErrVoiceSearchFailed}
	ErrSearchCount      = &Error{Code: "search_count", Kind: KindPipeline, Ignorable: true, Message: sys.ErrVoiceSearchCount}
	ErrAgentFailed      = &Error{Code: "agent_failed", Kind: KindPipeline, Message: sys.ErrVoiceAgentFailed}
	ErrConnectFailed    = &Error{Code: "connect_failed", Kind: KindPipeline, Message: sys.ErrVoiceConnectFailed}

	ErrMissingSession = &Error{Code: "missing_session", Kind: KindConcurrency, Message: sys.ErrVoiceMissingSession}
	ErrQueueChanged   = &Error{Code: "queue_changed", Kind: KindConcurrency, Message: sys.ErrVoiceQueueChanged}
	ErrQueueNotIdle   = &Error{Code: "queue_not_idle", Kind: KindConcurrency, Message: sys.ErrVoiceQueueNotIdle}
	ErrSessionGone    = &Error{Code: "session_gone", Kind: KindConcurrency, Message: sys.ErrVoiceSessionGone}

	ErrMissingCredentials = &Error{Code: "missing_credentials", Kind: KindConfig, Message: sys.MsgConfigMissingAPIKey}
)

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsIgnorable reports whether err only signals a degraded but usable result.
func IsIgnorable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Ignorable
}

// IsUserState reports whether err should be shown to the user instead of logged.
func IsUserState(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindUserState
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return sys.ErrVoiceGeneric
}
