package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"
	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain command", "정지", "정지"},
		{"polite ending", "정지해주세요", "정지"},
		{"fillers dropped", "음 그냥 앉아", "앉아"},
		{"filler only", "저기 음 아", ""},
		{"whitespace only", " \t\n ", ""},
		{"empty", "", ""},
		{"punctuation and case", "ROBOT, 점프!!", "robot 점프"},
		{"command prefix kept", "/go", "/go"},
		{"case marker", "하트를", "하트"},
		{"longest case marker wins", "집에서", "집"},
		{"ending then marker", "점프해", "점프"},
		{"whitespace collapsed", "일어서    빨리", "일어서 빨리"},
		{"repeated marker converges", "정지를를", "정지"},
		{"stripped into filler", "그를", ""},
		{"token fully stripped", "해 정지", "정지"},
		// A noun ending in a marker syllable loses it too once the real
		// marker is gone: 사과를 -> 사과 -> 사.
		{"noun ending in marker syllable", "사과를 해", "사"},
		{"bare noun ending in marker syllable", "사과", "사"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeComposesDecomposedHangul(t *testing.T) {
	decomposed := norm.NFD.String("정지")
	assert.NotEqual(t, "정지", decomposed)
	assert.Equal(t, "정지", Normalize(decomposed))
}

func TestNormalizeIdempotent(t *testing.T) {
	fragments := []string{
		"정지", "앉아", "일어서", "하트", "점프", "출발", "그", "음", "자", "저기",
		"를", "을", "에서", "해", "해주세요", "하세요", "이", "가", "!", "?", ",",
		" ", "  ", "\t", "/", "go", "GO", "Robot", "1", "13", "ㅋ", "é", "€",
	}
	rapid.Check(t, func(rt *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(fragments), 0, 12).Draw(rt, "parts")
		in := strings.Join(parts, "")

		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			rt.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
		if strings.Contains(once, "  ") || strings.TrimSpace(once) != once {
			rt.Fatalf("Normalize(%q) = %q has irregular spacing", in, once)
		}
	})
}

func TestNormalizeIdempotentArbitraryText(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.String().Draw(rt, "in")
		once := Normalize(in)
		if twice := Normalize(once); once != twice {
			rt.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	})
}

func TestNewTranscript(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	final := NewFinal("stdin", "정지", at)
	assert.True(t, final.Final)
	assert.Equal(t, "stdin", final.Source)
	assert.Equal(t, at, final.Timestamp)
	assert.NotEmpty(t, final.ID)

	partial := NewPartial("vosk", "정", at)
	assert.False(t, partial.Final)
	assert.NotEqual(t, final.ID, partial.ID)
}
