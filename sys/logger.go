package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	loaderColor   = color.New(color.FgBlue)
	voiceColor    = color.New(color.FgMagenta)
	searchColor   = color.New(color.FgGreen)
	autoplayColor = color.New(color.FgHiMagenta)

	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		logName := GetProjectName() + ".log"
		if exePath, exeErr := os.Executable(); exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

// LogFatal logs at fatal level and panics so deferred cleanup in main still runs.
func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogLoader(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "loader"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogVoiceWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogSearch(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "search"))
}

func LogAutoplay(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "autoplay"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	levelStr, levelColor := "DEBUG", infoColor

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr, levelColor = "FATAL", fatalColor
	case r.Level >= slog.LevelError:
		levelStr, levelColor = "ERROR", errorColor
	case r.Level >= slog.LevelWarn:
		levelStr, levelColor = "WARN", warnColor
	case r.Level >= slog.LevelInfo:
		levelStr, levelColor = "INFO", infoColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(getComponentColor(component), fmt.Sprintf("[%s] %s", component, r.Message)))
		return nil
	}

	displayMsg := fmt.Sprintf("[%s] %s", levelStr, r.Message)
	if levelStr == "INFO" && strings.HasPrefix(r.Message, "[") {
		if idx := strings.Index(r.Message, "]"); idx > 0 && idx < 20 {
			displayMsg = r.Message
		}
	}
	fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, displayMsg))
	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "LOADER":
		return loaderColor
	case "VOICE":
		return voiceColor
	case "SEARCH":
		return searchColor
	case "AUTOPLAY":
		return autoplayColor
	default:
		return color.New(color.FgCyan)
	}
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	return c.Sprint(strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq))
}

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad     = "Failed to load config: %v"
	MsgConfigMissingToken     = "DISCORD_TOKEN is not set in .env file"
	MsgConfigMissingAPIKey    = "GOOGLE_API_KEY is required when SEARCH_BACKEND is \"api\""
	MsgConfigInvalidBackend   = "unknown SEARCH_BACKEND %q (want api, ytmusic or ytsearch)"
	MsgConfigInvalidGuildID   = "invalid GUILD_ID: must be a valid Snowflake"
	MsgConfigInvalidNumber    = "invalid %s: %q"
	MsgDatabaseInitSuccess    = "Database initialized successfully"
	MsgDatabaseTableError     = "Failed to create table: %w"
	MsgDatabasePragmaError    = "Failed to set pragma %s: %w"
	MsgDaemonStarting         = "Starting..."
	MsgBotStarting            = "Starting %s..."
	MsgBotReady               = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown            = "Shutting down %s..."
	MsgBotKillingOld          = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated       = "Old instance terminated."
	MsgBotRegisterFail        = "Command registration failed: %v"
	MsgGenericError           = "%v"
	MsgLoaderSyncCommands     = "Syncing %s commands..."
	MsgLoaderUpToDate         = "Commands are up to date. (Hash: %s)"
	MsgLoaderDevRegistered    = "[DEV] Registered: %s"
	MsgLoaderDevFail          = "[DEV] Registration failed: %v"
	MsgLoaderProdRegistered   = "[PROD] Registered: %s"
	MsgLoaderProdFail         = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting     = "Scanning guilds for stale commands..."
	MsgLoaderScanCleared      = "Cleared stale commands in %s (%s)"
	MsgLoaderCleanup          = "Cleared commands from previous guild %s"
	MsgLoaderDevGlobalClear   = "[DEV] Clearing global commands..."
	MsgLoaderDevClearFail     = "[DEV] Failed to clear global commands: %v"
	MsgLoaderPanicRecovered   = "Panic recovered in handler: %v"
	MsgLoaderComponentUnknown = "No component handler for %q"

	// --- Voice System ---
	MsgVoiceConnected        = "Connected to channel %s in guild %s"
	MsgVoiceMoved            = "Moved from %s to %s in guild %s"
	MsgVoiceDisconnected     = "Disconnected from guild %s"
	MsgVoiceConnectFail      = "Failed to connect to voice in guild %s: %v"
	MsgVoiceLoopStarted      = "Streaming loop started for guild %s"
	MsgVoiceLoopStopped      = "Streaming loop stopped for guild %s"
	MsgVoiceIdleTimeout      = "Idle timeout in guild %s"
	MsgVoicePlaying          = "Playing track: %s · %s (%s)"
	MsgVoicePlayFail         = "Failed to play %s: %v"
	MsgVoiceTrackError       = "Error: %s: %v"
	MsgVoiceTrackRemoved     = "Removed Track (Guild: %s, Track: %s)"
	MsgVoiceStatusFail       = "Failed to update status for %s: %v"
	MsgVoiceTranscodeFail    = "Transcoder failed for %s: %v"
	MsgVoiceExternalLeave    = "Bot disconnected by external event in guild %s"
	MsgVoiceAllLeft          = "All users have left channel %s in guild %s"
	MsgVoiceShuttingDown     = "Shutting down voice manager..."
	MsgVoiceConnectionLost   = "Voice connection lost in guild %s"
	MsgSearchQuery           = "Searched (Query: %s, Results: %d)"
	MsgSearchResult          = "Searched Video (Title: %s, Channel: %s, URL: %s)"
	MsgAutoplaySuggestFail   = "Auto Play Suggestion Error (attempt %d/%d): %v"
	MsgAutoplayInvalidURL    = "Auto Play Suggestion has Invalid Url (attempt %d/%d)"
	MsgAutoplayDownloadFail  = "Auto Play Download Error (attempt %d/%d): %v"
	MsgAutoplayAdded         = "Auto Play added %s in guild %s"
	MsgAutoplayExhausted     = "Auto Play gave up after %d attempts in guild %s"
	MsgAutoplayCancelled     = "Auto Play cancelled in guild %s: session is no longer valid"
	MsgAgentSessionCreated   = "Agent session %s created"
	MsgAgentSessionDeleted   = "Agent session %s deleted"
	MsgAgentMixFail          = "Mix fetch failed for %s: %v"
	MsgAgentPicked           = "Agent picked %s (%s) for keyword %q"
	ErrVoiceNotConnected     = "The bot is not connected to a voice channel."
	ErrVoiceAlreadyConnected = "The bot is already connected to your voice channel."
	ErrVoiceUserNotInVoice   = "You must be in a voice channel."
	ErrVoiceUserOtherGuild   = "Your voice channel is in a different server."
	ErrVoiceUserOtherChannel = "You must be in the same voice channel as the bot."
	ErrVoiceUserNotInGuild   = "This command can only be used in a server."
	ErrVoiceNoTrackPlaying   = "No track is playing."
	ErrVoiceLoopNotRunning   = "The player is not running. Reconnect the bot."
	ErrVoiceMissingSession   = "The voice session has expired. Reconnect the bot."
	ErrVoiceQueueChanged     = "The queue has changed. Press Update and try again."
	ErrVoiceQueueNotIdle     = "The queue is busy."
	ErrVoiceSessionGone      = "The voice session ended before the track was added."
	ErrVoiceIndexOutOfRange  = "That track is no longer in the queue."
	ErrVoiceMissingPerms     = "Only the requester can remove this track."
	ErrVoiceAutoplayState    = "Auto Play is not enabled."
	ErrVoiceExtractionFailed = "Failed to read the track information."
	ErrVoiceDownloadFailed   = "Failed to download the track."
	ErrVoiceSearchFailed     = "No results found."
	ErrVoiceSearchCount      = "Fewer results than requested."
	ErrVoiceAgentFailed      = "Failed to get a suggestion."
	ErrVoiceConnectFailed    = "Failed to connect to the voice channel."
	ErrVoiceGeneric          = "Something went wrong. Please try again."
	ErrVoiceSearchExpired    = "This search has expired. Run it again."
	ErrVoiceSearchOwner      = "Only the user who searched can pick a result."

	// --- Voice UI ---
	MsgVoiceAdminShutdown = "User %s (%s) shut down the voice player"
	MsgVoiceUIConnected   = "Connected to <#%s>."
	MsgVoiceUIDisconnect  = "Disconnected."
	MsgVoiceUIAdded       = "### Added to the Queue"
	MsgVoiceUICancelled   = "### Cancelled Adding Track"
	MsgVoiceUISkipped     = "### Skipped"
	MsgVoiceUIRemoved     = "### Removed from the Queue"
	MsgVoiceUILoopOn      = "Loop enabled."
	MsgVoiceUILoopOff     = "Loop disabled."
	MsgVoiceUIAutoplayOn  = "Auto Play enabled for **%s**."
	MsgVoiceUIAutoplayOff = "Auto Play disabled."
	MsgVoiceUITimeout     = "### Timeout\nDisconnected after %s without playback."
	MsgVoiceUIAllLeft     = "### All users have left\nDisconnected."
	MsgVoiceUIKicked      = "### Disconnected\nThe bot was removed from the voice channel."
	MsgVoiceUIShutdown    = "### Shutting Down\nThe player is restarting. Reconnect the bot in a moment."
	MsgVoiceUIShutdownOK  = "Disconnected %d session(s)."
	MsgVoiceUIQueue       = "### Queue"
	MsgVoiceUIQueueEmpty  = "Nothing is queued."
	MsgVoiceUINowPlaying  = "**Now Playing**"
	MsgVoiceUIUpNext      = "**Up Next**"
	MsgVoiceUIMore        = "-# and %d more"
	MsgVoiceUITrack       = "### Track %d of %d"
	MsgVoiceUISearch      = "### Results for %s"
	MsgVoiceUISearchPage  = "-# Page %d of %d"
	MsgVoiceUISearchPick  = "Pick a track to add..."
	MsgVoiceUIAutoplay    = "Auto Play"
)
