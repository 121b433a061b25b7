package proc

import (
	"context"
	"errors"
	"strings"

	"github.com/asticode/go-astiav"
)

const (
	opusSampleRate = 48000
	// 20ms of audio at 48kHz.
	opusFrameSamples = 960
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// Transcoder decodes a remote audio stream and re-encodes it to Opus frames.
type Transcoder struct {
	inputCtx               *astiav.FormatContext
	decoderCtx, encoderCtx *astiav.CodecContext
	audioStreamIndex       int
	packet                 *astiav.Packet
	frame                  *astiav.Frame
	resampleCtx            *astiav.SoftwareResampleContext
	resampleFrame          *astiav.Frame
	fifo                   *astiav.AudioFifo
	onFrame                func([]byte)
	pts                    int64
}

func NewTranscoder() *Transcoder {
	return &Transcoder{
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
	}
}

// Open opens t's source with its request headers and prepares both codecs.
func (t *Transcoder) Open(track *Track) error {
	if err := t.openInput(track.Source, track.Headers); err != nil {
		return err
	}
	if err := t.setupDecoder(); err != nil {
		return err
	}
	return t.setupEncoder()
}

func (t *Transcoder) openInput(source string, headers []string) error {
	if source == "" {
		return errors.New("track has no source")
	}
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc format context")
	}

	var opts *astiav.Dictionary
	if strings.HasPrefix(source, "http") {
		opts = astiav.NewDictionary()
		defer opts.Free()
		opts.Set("reconnect", "1", 0)
		opts.Set("reconnect_at_eof", "1", 0)
		opts.Set("reconnect_streamed", "1", 0)
		opts.Set("reconnect_delay_max", "10", 0)
		opts.Set("timeout", "30000000", 0)
		opts.Set("fflags", "nobuffer+discardcorrupt", 0)
		if len(headers) > 0 {
			opts.Set("headers", strings.Join(headers, "\r\n")+"\r\n", 0)
		}
	}
	if err := t.inputCtx.OpenInput(source, nil, opts); err != nil {
		return err
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}

	t.audioStreamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errors.New("no audio stream")
	}
	return nil
}

func (t *Transcoder) setupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return errors.New("no decoder")
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	_ = p.ToCodecContext(t.decoderCtx)
	return t.decoderCtx.Open(d, nil)
}

func (t *Transcoder) setupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no opus encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(128000)
	t.encoderCtx.SetSampleRate(opusSampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, opusSampleRate))

	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_duration", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}

	// Configured lazily by ConvertFrame from the first decoded frame.
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	return nil
}

// Run transcodes until the input ends or ctx is done, calling on for every Opus frame.
func (t *Transcoder) Run(ctx context.Context, on func([]byte)) error {
	t.onFrame = on

	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), opusFrameSamples*2)
	defer func() {
		t.fifo.Free()
		t.fifo = nil
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			t.packet.Unref()
			continue
		}
		err := t.decoderCtx.SendPacket(t.packet)
		t.packet.Unref()
		if err != nil {
			return err
		}
		t.drainDecoder(false)
	}

	_ = t.decoderCtx.SendPacket(nil)
	t.drainDecoder(true)
	t.flushFifo()

	_ = t.encoderCtx.SendFrame(nil)
	t.receivePackets()
	return nil
}

// drainDecoder resamples every decoded frame into the fifo and encodes full frames.
func (t *Transcoder) drainDecoder(final bool) {
	for t.decoderCtx.ReceiveFrame(t.frame) == nil {
		t.prepareResampleFrame(0)
		nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, opusSampleRate)))
		if nb > 0 {
			t.resampleFrame.SetNbSamples(nb)
			_ = t.resampleFrame.AllocBuffer(0)
			if t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame) == nil {
				_, _ = t.fifo.Write(t.resampleFrame)
			}
		}
		t.frame.Unref()

		if !final {
			for t.fifo.Size() >= opusFrameSamples {
				t.encodeFromFifo(opusFrameSamples)
			}
		}
	}
}

// flushFifo encodes whatever is left, including a short last frame.
func (t *Transcoder) flushFifo() {
	for t.fifo.Size() > 0 {
		t.encodeFromFifo(min(t.fifo.Size(), opusFrameSamples))
	}
}

func (t *Transcoder) prepareResampleFrame(samples int) {
	t.resampleFrame.Unref()
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
	if samples > 0 {
		t.resampleFrame.SetNbSamples(samples)
	}
}

func (t *Transcoder) encodeFromFifo(samples int) {
	t.prepareResampleFrame(samples)
	_ = t.resampleFrame.AllocBuffer(0)
	_, _ = t.fifo.Read(t.resampleFrame)
	t.resampleFrame.SetPts(t.pts)
	t.pts += int64(samples)
	if t.encoderCtx.SendFrame(t.resampleFrame) == nil {
		t.receivePackets()
	}
}

func (t *Transcoder) receivePackets() {
	for {
		p := astiav.AllocPacket()
		if t.encoderCtx.ReceivePacket(p) != nil {
			p.Free()
			return
		}
		d := p.Data()
		frame := make([]byte, len(d))
		copy(frame, d)
		p.Free()
		t.onFrame(frame)
	}
}

func (t *Transcoder) Close() {
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}
