package storage

import "testing"

func TestChunkAudioFilename(t *testing.T) {
	got := ChunkAudioFilename("My Great Book", 3)
	want := "my_great_book_chunk3.wav"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestFinalAudioFilename(t *testing.T) {
	got := FinalAudioFilename("My Great Book", "mp3")
	want := "my_great_book_complete.mp3"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSlugifyName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Moby Dick", "moby_dick"},
		{"  Trimmed  ", "trimmed"},
		{"Düne!", "dne"},
		{"", "audiobook"},
		{"???", "audiobook"},
		{"already_safe-123", "already_safe-123"},
	}

	for _, c := range cases {
		if got := SlugifyName(c.in); got != c.want {
			t.Errorf("SlugifyName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
