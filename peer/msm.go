package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/ciphernom/voirc/internal/voirccfg"
)

// sampleOf wraps an encoded Opus frame into the media.Sample pion's track
// writer expects, stamped with the codec's fixed 20ms frame duration.
func sampleOf(frame []byte) media.Sample {
	return media.Sample{Data: frame, Duration: audioFrameDuration}
}

// Codec parameters, spec.md §4.7: Opus, 48kHz, mono, 20ms frames, PT 111.
const (
	audioClockRate      = 48000
	audioChannels       = 1
	audioFrameDuration  = 20 * time.Millisecond
	audioPayloadType    = 111
	filesLabel          = "files"
	maxFileChunkBytes   = 16 * 1024
	fileFramePrefix     = "FILE:"
	fileEndFrame        = "FILE_END"
	defaultSTUNServer   = "stun:stun.l.google.com:19302"
)

// signalEnvelope is the JSON payload carried inside a WebRtcSignal event
// (spec.md §4.7's offer/answer/ICE-candidate signaling, transported over
// FRAG when it exceeds one line).
type signalEnvelope struct {
	Kind      string                    `json:"kind"` // "offer", "answer", "candidate"
	SDP       string                    `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit  `json:"candidate,omitempty"`
}

// AudioFrame is one sender-tagged Opus frame delivered on the audio
// intake channel, kept separate from the general Event channel per
// spec.md §5's bounded, drop-on-full audio ring.
type AudioFrame struct {
	From string
	Data []byte
}

// inFlightFile accumulates one data-channel file transfer in progress.
type inFlightFile struct {
	name string
	buf  bytes.Buffer
}

// Session is one remote nick's media-transport connection: one
// PeerConnection, one outgoing audio track, one incoming audio track
// (delivered via callback, not held here), and one reliable "files" data
// channel (spec.md §4.7).
type Session struct {
	nick     string
	pc       *webrtc.PeerConnection
	outTrack *webrtc.TrackLocalStaticSample

	dataMu sync.Mutex
	data   *webrtc.DataChannel

	fileMu sync.Mutex
	inFile *inFlightFile
}

// SendAudio writes one encoded Opus frame to this session's outgoing
// track.
func (s *Session) SendAudio(frame []byte) error {
	return s.outTrack.WriteSample(sampleOf(frame))
}

// sendFileFrame writes a chunk to the files data channel once it is open.
func (s *Session) sendFileFrame(data []byte) error {
	s.dataMu.Lock()
	dc := s.data
	s.dataMu.Unlock()
	if dc == nil {
		return fmt.Errorf("[msm] %s: files channel not open", s.nick)
	}
	return dc.Send(data)
}

func (s *Session) sendFileText(text string) error {
	s.dataMu.Lock()
	dc := s.data
	s.dataMu.Unlock()
	if dc == nil {
		return fmt.Errorf("[msm] %s: files channel not open", s.nick)
	}
	return dc.SendText(text)
}

// SendFile streams name/data over the files data channel as a FILE:
// header, ≤16KiB binary frames, then FILE_END (spec.md §4.7).
func (s *Session) SendFile(name string, data []byte) error {
	total := len(data)
	if err := s.sendFileText(fmt.Sprintf("%s%s:%d", fileFramePrefix, name, total)); err != nil {
		return err
	}
	for len(data) > 0 {
		n := len(data)
		if n > maxFileChunkBytes {
			n = maxFileChunkBytes
		}
		if err := s.sendFileFrame(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	if err := s.sendFileText(fileEndFrame); err != nil {
		return err
	}
	log.Printf("[msm] sent file to %s (%s)", s.nick, humanize.Bytes(uint64(total)))
	return nil
}

// handleFileMessage processes one inbound data-channel message, emitting
// ReceivedFile on FILE_END. A new FILE: header replaces any in-flight
// transfer (spec.md §4.7).
func (s *Session) handleFileMessage(msg webrtc.DataChannelMessage, emit func(Event)) {
	if !msg.IsString {
		s.fileMu.Lock()
		if s.inFile != nil {
			s.inFile.buf.Write(msg.Data)
		}
		s.fileMu.Unlock()
		return
	}

	text := string(msg.Data)
	switch {
	case strings.HasPrefix(text, fileFramePrefix):
		rest := strings.TrimPrefix(text, fileFramePrefix)
		idx := strings.LastIndexByte(rest, ':')
		if idx < 0 {
			return
		}
		name := rest[:idx]
		size, err := strconv.ParseInt(rest[idx+1:], 10, 64)
		if err != nil || size < 0 {
			return
		}
		s.fileMu.Lock()
		s.inFile = &inFlightFile{name: name}
		s.fileMu.Unlock()
	case text == fileEndFrame:
		s.fileMu.Lock()
		f := s.inFile
		s.inFile = nil
		s.fileMu.Unlock()
		if f == nil {
			return
		}
		log.Printf("[msm] received file %q from %s (%s)", f.name, s.nick, humanize.Bytes(uint64(f.buf.Len())))
		emit(ReceivedFile{From: s.nick, Name: f.name, Data: f.buf.Bytes()})
	}
}

// MSM holds every active media session, keyed by remote nick, and the ICE
// server list shared by every new session (spec.md §4.7).
type MSM struct {
	mu       sync.Mutex
	sessions map[string]*Session

	selfNick   string
	iceServers []webrtc.ICEServer

	sendSignal func(target, payload string)
	events     chan<- Event
	audioIn    chan<- AudioFrame
}

// NewMSM builds an MSM for selfNick. sendSignal is called to ship a
// WebRtcSignal payload to a remote nick (the caller fragments it via
// Client.SendWebRtcSignal); events receives connection-state and
// file-transfer occurrences; audioIn receives sender-tagged encoded audio frames.
func NewMSM(selfNick string, cfg voirccfg.Config, sendSignal func(target, payload string), events chan<- Event, audioIn chan<- AudioFrame) *MSM {
	servers := []webrtc.ICEServer{{URLs: []string{defaultSTUNServer}}}
	for _, t := range cfg.TurnServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{t.URL},
			Username:   t.Username,
			Credential: t.Credential,
		})
	}
	return &MSM{
		sessions:   make(map[string]*Session),
		selfNick:   selfNick,
		iceServers: servers,
		sendSignal: sendSignal,
		events:     events,
		audioIn:    audioIn,
	}
}

func (m *MSM) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Printf("[msm] event channel full, dropping %T", ev)
	}
}

// Session returns the active session for nick, if any.
func (m *MSM) Session(nick string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[nick]
	return s, ok
}

// newPeerConnection allocates a PeerConnection with this MSM's ICE
// servers and a fresh outgoing Opus track already added.
func (m *MSM) newPeerConnection(nick string) (*Session, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers})
	if err != nil {
		return nil, fmt.Errorf("[msm] new peer connection for %s: %w", nick, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioClockRate, Channels: audioChannels},
		"audio", "voirc-"+nick,
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("[msm] new track for %s: %w", nick, err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, fmt.Errorf("[msm] add track for %s: %w", nick, err)
	}

	s := &Session{nick: nick, pc: pc, outTrack: track}
	m.wireCallbacks(s)
	return s, nil
}

// wireCallbacks installs the ICE-candidate, connection-state, incoming-
// track, and data-channel callbacks common to both offerer and answerer
// sides (spec.md §4.7). Every callback only ever enqueues an Event or an
// AudioFrame — none of them touch STATE directly (spec.md §5).
func (m *MSM) wireCallbacks(s *Session) {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		m.sendSignalEnvelope(s.nick, signalEnvelope{Kind: "candidate", Candidate: &init})
	})

	s.pc.OnConnectionStateChange(func(cs webrtc.PeerConnectionState) {
		switch cs {
		case webrtc.PeerConnectionStateConnected:
			m.emit(MediaConnected{Nick: s.nick})
		case webrtc.PeerConnectionStateFailed:
			m.emit(ConnFailed{Nick: s.nick})
			m.emit(Reconnect{Nick: s.nick})
		case webrtc.PeerConnectionStateDisconnected:
			m.emit(Reconnect{Nick: s.nick})
		}
	})

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				return
			}
			select {
			case m.audioIn <- AudioFrame{From: s.nick, Data: pkt.Payload}:
			default:
				// bounded intake ring: drop rather than block the reader (spec.md §5)
			}
		}
	})

	s.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != filesLabel {
			return
		}
		s.dataMu.Lock()
		s.data = dc
		s.dataMu.Unlock()
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			s.handleFileMessage(msg, m.emit)
		})
	})
}

func (m *MSM) sendSignalEnvelope(target string, env signalEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("[msm] marshal signal to %s: %v", target, err)
		return
	}
	m.sendSignal(target, string(raw))
}

// CreateOffer builds a new offerer-side session for remoteNick: the
// "files" data channel is created before CreateOffer so it appears in the
// SDP (spec.md §4.7).
func (m *MSM) CreateOffer(remoteNick string) error {
	s, err := m.newPeerConnection(remoteNick)
	if err != nil {
		return err
	}

	dc, err := s.pc.CreateDataChannel(filesLabel, nil)
	if err != nil {
		s.pc.Close()
		return fmt.Errorf("[msm] create files channel for %s: %w", remoteNick, err)
	}
	s.dataMu.Lock()
	s.data = dc
	s.dataMu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.handleFileMessage(msg, m.emit)
	})

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.pc.Close()
		return fmt.Errorf("[msm] create offer for %s: %w", remoteNick, err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.pc.Close()
		return fmt.Errorf("[msm] set local description for %s: %w", remoteNick, err)
	}

	m.mu.Lock()
	m.sessions[remoteNick] = s
	m.mu.Unlock()

	m.sendSignalEnvelope(remoteNick, signalEnvelope{Kind: "offer", SDP: offer.SDP})
	return nil
}

// HandleSignal applies an inbound WebRtcSignal payload from "from"
// (spec.md §4.7): an offer creates the answerer-side session and replies
// with an answer; an answer completes the offerer side; a candidate is
// added to whichever session already exists.
func (m *MSM) HandleSignal(from, payload string) error {
	var env signalEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return fmt.Errorf("[msm] malformed signal from %s: %w", from, err)
	}

	switch env.Kind {
	case "offer":
		return m.handleOffer(from, env.SDP)
	case "answer":
		s, ok := m.Session(from)
		if !ok {
			return fmt.Errorf("[msm] answer from %s with no pending offer", from)
		}
		return s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP})
	case "candidate":
		s, ok := m.Session(from)
		if !ok || env.Candidate == nil {
			return nil
		}
		return s.pc.AddICECandidate(*env.Candidate)
	default:
		return fmt.Errorf("[msm] unknown signal kind %q from %s", env.Kind, from)
	}
}

func (m *MSM) handleOffer(from, sdp string) error {
	s, err := m.newPeerConnection(from)
	if err != nil {
		return err
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		s.pc.Close()
		return fmt.Errorf("[msm] set remote description for %s: %w", from, err)
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.pc.Close()
		return fmt.Errorf("[msm] create answer for %s: %w", from, err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.pc.Close()
		return fmt.Errorf("[msm] set local description for %s: %w", from, err)
	}

	m.mu.Lock()
	m.sessions[from] = s
	m.mu.Unlock()

	m.sendSignalEnvelope(from, signalEnvelope{Kind: "answer", SDP: answer.SDP})
	return nil
}

// SendAudio writes frame to remoteNick's outgoing track, if a session
// exists.
func (m *MSM) SendAudio(remoteNick string, frame []byte) error {
	s, ok := m.Session(remoteNick)
	if !ok {
		return fmt.Errorf("[msm] no session for %s", remoteNick)
	}
	return s.SendAudio(frame)
}

// ForwardAudio re-writes a sender's raw encoded frame unchanged to every
// target session's outgoing track (superpeer forwarding, spec.md §4.6
// invariant 7). Errors on individual targets are logged, not returned,
// since one bad session should never stop the fan-out to the rest.
func (m *MSM) ForwardAudio(from string, frame []byte, targets []string) {
	for _, t := range targets {
		if t == from {
			continue
		}
		if err := m.SendAudio(t, frame); err != nil {
			log.Printf("[msm] forward to %s: %v", t, err)
		}
	}
}

// SendFile streams a file to remoteNick's files data channel.
func (m *MSM) SendFile(remoteNick, name string, data []byte) error {
	s, ok := m.Session(remoteNick)
	if !ok {
		return fmt.Errorf("[msm] no session for %s", remoteNick)
	}
	return s.SendFile(name, data)
}

// CloseSession tears down and forgets remoteNick's session.
func (m *MSM) CloseSession(remoteNick string) {
	m.mu.Lock()
	s, ok := m.sessions[remoteNick]
	delete(m.sessions, remoteNick)
	m.mu.Unlock()
	if ok {
		s.pc.Close()
	}
}

// CloseAll tears down every active session (spec.md §4.9's Shutdown
// command and channel-switch handling).
func (m *MSM) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.pc.Close()
	}
}
