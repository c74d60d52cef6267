package charset

import "testing"

func TestDecodeMIME(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		mimeType     string
		want         string
		wantFallback bool
	}{
		{
			name:     "plain utf-8",
			data:     []byte("héllo"),
			mimeType: "text/plain; charset=utf-8",
			want:     "héllo",
		},
		{
			name:     "latin-1 declared",
			data:     []byte{0x63, 0x61, 0x66, 0xe9}, // "café" in ISO-8859-1
			mimeType: "text/plain; charset=iso-8859-1",
			want:     "café",
		},
		{
			name:     "no charset parameter",
			data:     []byte("plain ascii"),
			mimeType: "text/plain",
			want:     "plain ascii",
		},
		{
			name:         "declared utf-8 but invalid bytes fall back to latin-1",
			data:         []byte{0x63, 0x61, 0x66, 0xe9},
			mimeType:     "text/plain; charset=utf-8",
			want:         "café",
			wantFallback: true,
		},
		{
			name:         "unknown charset falls back",
			data:         []byte("data"),
			mimeType:     "text/plain; charset=x-no-such-charset",
			want:         "data",
			wantFallback: true,
		},
		{
			name:     "windows-1252 via iana index",
			data:     []byte{0x93, 0x68, 0x69, 0x94}, // smart-quoted "hi"
			mimeType: "text/plain; charset=windows-1252",
			want:     "“hi”",
		},
		{
			name:     "unparsable mime type treated as utf-8",
			data:     []byte("ok"),
			mimeType: ";;;",
			want:     "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback := DecodeMIME(tt.data, tt.mimeType)
			if got != tt.want {
				t.Errorf("DecodeMIME = %q, want %q", got, tt.want)
			}
			if fallback != tt.wantFallback {
				t.Errorf("fallback = %v, want %v", fallback, tt.wantFallback)
			}
		})
	}
}

func TestDecode_EmptyInput(t *testing.T) {
	got, fallback := Decode(nil, "utf-8")
	if got != "" || fallback {
		t.Errorf("Decode(nil) = %q, %v, want empty and no fallback", got, fallback)
	}
}
