package proc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/cadence/sys"
	"golang.org/x/time/rate"
)

const voiceStatusMaxLen = 128

// DisgoTransport connects through the disgo voice manager and streams with Transcoder.
type DisgoTransport struct {
	Client *bot.Client
}

func NewDisgoTransport(client *bot.Client) *DisgoTransport {
	return &DisgoTransport{Client: client}
}

func (t *DisgoTransport) Connect(ctx context.Context, guildID, channelID snowflake.ID) (Conn, error) {
	vc := t.Client.VoiceManager.CreateConn(guildID)
	if err := vc.Open(ctx, channelID, false, true); err != nil {
		vc.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	lifetime, cancel := context.WithCancel(context.Background())
	c := &disgoConn{
		client:  t.Client,
		guildID: guildID,
		vc:      vc,
		ctx:     lifetime,
		cancel:  cancel,
	}
	c.channelID.Store(uint64(channelID))
	c.connected.Store(true)
	c.status = newVoiceStatus(t.Client)
	sys.SafeGo(func() { c.status.run(lifetime) })
	return c, nil
}

type disgoConn struct {
	client    *bot.Client
	guildID   snowflake.ID
	vc        voice.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	channelID atomic.Uint64
	connected atomic.Bool
	status    *voiceStatus

	mu     sync.Mutex
	stream *stream
}

// stream is one track being fed to the connection.
type stream struct {
	track    *Track
	provider *streamProvider
	cancel   context.CancelFunc
}

// ChannelID follows the gateway, so a drag to another channel is picked up.
func (c *disgoConn) ChannelID() snowflake.ID {
	if id := c.vc.ChannelID(); id != nil {
		return *id
	}
	return snowflake.ID(c.channelID.Load())
}

func (c *disgoConn) IsConnected() bool { return c.connected.Load() }

func (c *disgoConn) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

func (c *disgoConn) Move(ctx context.Context, channelID snowflake.ID) error {
	old := c.ChannelID()
	if err := c.client.UpdateVoiceState(ctx, c.guildID, &channelID, false, true); err != nil {
		return err
	}
	c.channelID.Store(uint64(channelID))
	c.status.clear(ctx, old)
	return nil
}

func (c *disgoConn) Disconnect(ctx context.Context) error {
	if !c.connected.Swap(false) {
		return nil
	}
	c.Stop()
	c.status.clear(ctx, c.ChannelID())
	c.cancel()
	c.vc.Close(ctx)
	return nil
}

func (c *disgoConn) Play(t *Track, onFinished func(error)) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.Stop()

	ctx, cancel := context.WithCancel(c.ctx)
	s := &stream{track: t, provider: newStreamProvider(ctx), cancel: cancel}
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()

	sys.SafeGo(func() {
		err := transcode(ctx, t, s.provider)
		select {
		case <-s.provider.finished:
		case <-ctx.Done():
		}
		c.detach(s)
		if ctx.Err() != nil {
			err = nil
		}
		cancel()
		onFinished(err)
	})

	c.setProvider(s.provider)
	_ = c.vc.SetSpeaking(c.ctx, voice.SpeakingFlagMicrophone)
	c.status.set(c.ChannelID(), sys.TruncateWithPreserve(t.DisplayTitle(), voiceStatusMaxLen, "🎵 Now Playing ", channelSuffix(t)))
	return nil
}

// Stop cancels the active stream. Its onFinished still runs.
func (c *disgoConn) Stop() {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s != nil {
		s.cancel()
	}
}

// detach releases the connection from s unless a newer stream already took over.
func (c *disgoConn) detach(s *stream) {
	c.mu.Lock()
	current := c.stream == s
	if current {
		c.stream = nil
	}
	c.mu.Unlock()
	if !current || !c.IsConnected() {
		return
	}
	c.setProvider(nil)
	_ = c.vc.SetSpeaking(c.ctx, 0)
	c.status.set(c.ChannelID(), "")
}

func (c *disgoConn) setProvider(p voice.OpusFrameProvider) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoiceWarn("Recovered from panic in SetOpusFrameProvider: %v", r)
		}
	}()
	c.vc.SetOpusFrameProvider(p)
}

func channelSuffix(t *Track) string {
	if t.Channel == "" || t.Channel == "NA" {
		return ""
	}
	return " · " + t.Channel
}

// transcode feeds t into p and always ends the stream with a nil frame.
func transcode(ctx context.Context, t *Track, p *streamProvider) error {
	defer p.push(nil)
	tr := NewTranscoder()
	defer tr.Close()
	if err := tr.Open(t); err != nil {
		sys.LogVoiceWarn(sys.MsgVoiceTranscodeFail, t.DisplayTitle(), err)
		return ErrDownloadFailed.Wrap(err)
	}
	if err := tr.Run(ctx, p.push); err != nil && !errors.Is(err, context.Canceled) {
		sys.LogVoiceWarn(sys.MsgVoiceTranscodeFail, t.DisplayTitle(), err)
		return err
	}
	return nil
}

// streamProvider buffers encoded frames between the transcoder and the voice
// connection. It answers with silence while the buffer is empty.
type streamProvider struct {
	ctx      context.Context
	frames   chan []byte
	finished chan struct{}
	once     sync.Once
}

func newStreamProvider(ctx context.Context) *streamProvider {
	return &streamProvider{
		ctx:      ctx,
		frames:   make(chan []byte, 100),
		finished: make(chan struct{}),
	}
}

func (p *streamProvider) push(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

func (p *streamProvider) ProvideOpusFrame() ([]byte, error) {
	select {
	case f := <-p.frames:
		if f == nil {
			p.Close()
			return nil, io.EOF
		}
		return f, nil
	case <-p.ctx.Done():
		p.Close()
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
		return nil, nil
	}
}

func (p *streamProvider) Close() {
	p.once.Do(func() { close(p.finished) })
}

type statusUpdate struct {
	channelID snowflake.ID
	text      string
}

// voiceStatus coalesces channel status changes and keeps them under the
// REST rate limit.
type voiceStatus struct {
	client  *bot.Client
	updates chan statusUpdate
	limiter *rate.Limiter
}

func newVoiceStatus(client *bot.Client) *voiceStatus {
	return &voiceStatus{
		client:  client,
		updates: make(chan statusUpdate, 10),
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 2),
	}
}

func (v *voiceStatus) set(channelID snowflake.ID, text string) {
	select {
	case v.updates <- statusUpdate{channelID: channelID, text: text}:
	default:
	}
}

// clear empties the status of channelID right away.
func (v *voiceStatus) clear(ctx context.Context, channelID snowflake.ID) {
	if err := v.put(ctx, channelID, ""); err != nil {
		sys.LogDebug(sys.MsgVoiceStatusFail, channelID, err)
	}
}

func (v *voiceStatus) put(ctx context.Context, channelID snowflake.ID, text string) error {
	if err := v.limiter.Wait(ctx); err != nil {
		return err
	}
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	return v.client.Rest.Do(route.Compile(nil), map[string]string{"status": text}, nil, rest.WithCtx(ctx))
}

func (v *voiceStatus) run(ctx context.Context) {
	var cur, next statusUpdate
	pending := false
	t := time.NewTimer(time.Hour)
	t.Stop()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case next = <-v.updates:
		drain:
			for {
				select {
				case next = <-v.updates:
				default:
					break drain
				}
			}
			if next == cur {
				pending = false
				continue
			}
			pending = true
			t.Reset(500 * time.Millisecond)
		case <-t.C:
			if !pending {
				continue
			}
			text := sys.TruncateCenter(next.text, voiceStatusMaxLen)
			if err := v.put(ctx, next.channelID, text); err != nil {
				if ctx.Err() != nil {
					return
				}
				sys.LogDebug(sys.MsgVoiceStatusFail, next.channelID, err)
				t.Reset(time.Second)
				continue
			}
			cur = next
			pending = false
		}
	}
}
