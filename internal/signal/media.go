package signal

// Toggle kinds.
const (
	KindAudio  = "audio"
	KindVideo  = "video"
	KindScreen = "screen"
)

// Video sources.
const (
	SourceNone   = "none"
	SourceCamera = "camera"
	SourceScreen = "screen"
)

// MediaState is what a participant is currently sending. Video is the
// camera flag and survives a screen share.
type MediaState struct {
	Audio       bool   `json:"audio"`
	Video       bool   `json:"video"`
	Screen      bool   `json:"screen"`
	VideoSource string `json:"video_source"`
}

// DefaultMediaState is the state of a participant who just joined.
func DefaultMediaState() MediaState {
	return MediaState{Audio: true, Video: true, VideoSource: SourceCamera}
}

func (m MediaState) normalized() MediaState {
	switch {
	case m.Screen:
		m.VideoSource = SourceScreen
	case m.Video:
		m.VideoSource = SourceCamera
	default:
		m.VideoSource = SourceNone
	}
	return m
}

// Toggle flips one track and reports whether kind was recognised.
func (m MediaState) Toggle(kind string) (MediaState, bool) {
	switch kind {
	case KindAudio:
		m.Audio = !m.Audio
	case KindVideo:
		m.Video = !m.Video
	case KindScreen:
		m.Screen = !m.Screen
	default:
		return m, false
	}
	return m.normalized(), true
}

// EndScreenShare handles the platform revoking a share. It reports false
// when nothing was being shared.
func (m MediaState) EndScreenShare() (MediaState, bool) {
	if !m.Screen {
		return m, false
	}
	m.Screen = false
	return m.normalized(), true
}
