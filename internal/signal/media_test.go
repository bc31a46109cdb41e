package signal

import "testing"

func TestToggleFlipsTracks(t *testing.T) {
	tests := []struct {
		name  string
		start MediaState
		kind  string
		want  MediaState
	}{
		{"mute", DefaultMediaState(), KindAudio, MediaState{Audio: false, Video: true, VideoSource: SourceCamera}},
		{"camera off", DefaultMediaState(), KindVideo, MediaState{Audio: true, Video: false, VideoSource: SourceNone}},
		{"share keeps camera flag", DefaultMediaState(), KindScreen, MediaState{Audio: true, Video: true, Screen: true, VideoSource: SourceScreen}},
		{"stop share restores camera",
			MediaState{Audio: true, Video: true, Screen: true, VideoSource: SourceScreen}, KindScreen,
			MediaState{Audio: true, Video: true, VideoSource: SourceCamera}},
		{"stop share without camera",
			MediaState{Audio: true, Screen: true, VideoSource: SourceScreen}, KindScreen,
			MediaState{Audio: true, VideoSource: SourceNone}},
		{"camera toggle while sharing",
			MediaState{Video: true, Screen: true, VideoSource: SourceScreen}, KindVideo,
			MediaState{Screen: true, VideoSource: SourceScreen}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.start.Toggle(tt.kind)
			if !ok {
				t.Fatalf("Toggle(%q) not recognised", tt.kind)
			}
			if got != tt.want {
				t.Errorf("Toggle(%q) = %+v, want %+v", tt.kind, got, tt.want)
			}
		})
	}

	if _, ok := DefaultMediaState().Toggle("mic"); ok {
		t.Error("unknown kind should be rejected")
	}
}

func TestEndScreenShare(t *testing.T) {
	sharing := MediaState{Audio: true, Video: true, Screen: true, VideoSource: SourceScreen}
	got, changed := sharing.EndScreenShare()
	if !changed || got.Screen || got.VideoSource != SourceCamera {
		t.Fatalf("EndScreenShare = %+v, %v", got, changed)
	}

	idle := DefaultMediaState()
	got, changed = idle.EndScreenShare()
	if changed || got != idle {
		t.Fatalf("ending a share that never started changed state: %+v", got)
	}
}
