package flow

import "testing"

func TestDetectPriority(t *testing.T) {
	t.Parallel()

	armed := State{Modes: Modes{VoiceVerify: true, MatrimonioCapture: true}}

	tests := []struct {
		name  string
		state State
		text  string
		want  Guard
	}{
		{"empty input", State{}, "   ", GuardNone},
		{"plain text no modes", State{}, "quiero renovar mi cédula", GuardNone},
		{"status keyword", State{}, "¿cómo va mi trámite? quiero el estado", GuardStatus},
		{"bare pin token", State{}, "A3K7P2", GuardStatus},
		{"pin inside sentence", State{}, "mi número es A3K7P2 gracias", GuardStatus},
		{"status beats matrimonio", armed, "consultar estado del radicado", GuardStatus},
		{"matrimonio beats voice", armed, "11-2023-1234567", GuardMatrimonio},
		{"voice verify armed", State{Modes: Modes{VoiceVerify: true}},
			"Juan Perez 1023456789", GuardVoiceVerify},
		{"six letter word is not a pin", State{}, "estoy contento", GuardNone},
		{"pin-shaped cedula stays with voice verify",
			State{Modes: Modes{VoiceVerify: true}}, "Maria Gomez 234567", GuardVoiceVerify},
		{"pin-shaped number stays with matrimonio",
			State{Modes: Modes{MatrimonioCapture: true}}, "234567", GuardMatrimonio},
		{"status keywords still divert armed capture",
			State{Modes: Modes{VoiceVerify: true}}, "mejor consultar mi pin A3K7P2", GuardStatus},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Detect(tc.state, tc.text); got != tc.want {
				t.Errorf("Detect(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractPIN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"A3K7P2", "A3K7P2"},
		{"mi pin es a3k7p2.", "A3K7P2"},
		{"consultar estado", ""},
		{"numero 123", ""},
	}
	for _, tc := range tests {
		if got := ExtractPIN(tc.text); got != tc.want {
			t.Errorf("ExtractPIN(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestNormalizeSpokenDigits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"uno dos tres", "123"},
		{"uno uno guión dos cero dos tres guión uno dos tres cuatro cinco seis siete",
			"11-2023-1234567"},
		{"mi cédula es uno cero dos tres", "mi cedula es 1023"},
		{"11-2023-1234567", "11-2023-1234567"},
	}
	for _, tc := range tests {
		if got := NormalizeSpokenDigits(tc.in); got != tc.want {
			t.Errorf("NormalizeSpokenDigits(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseVoiceIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text       string
		wantNombre string
		wantCedula string
		ok         bool
	}{
		{"Juan Perez 1023456789", "juan perez", "1023456789", true},
		{"María del Pilar García 52456789", "maria del pilar garcia", "52456789", true},
		{"Juan Perez uno cero dos tres cuatro cinco seis siete ocho nueve",
			"juan perez", "1023456789", true},
		{"Juan 12", "", "", false},            // number too short
		{"1023456789", "", "", false},         // no name tokens
		{"Juan 1023456789", "", "", false},    // single name token
		{"hola buenos días", "", "", false},   // no number at all
		{"Ana Ruiz 1234567890123", "", "", false}, // 13 digits, out of range
	}
	for _, tc := range tests {
		got, ok := ParseVoiceIdentity(tc.text)
		if ok != tc.ok {
			t.Errorf("ParseVoiceIdentity(%q) ok = %v, want %v", tc.text, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if got.Nombre != tc.wantNombre || got.Cedula != tc.wantCedula {
			t.Errorf("ParseVoiceIdentity(%q) = %+v, want nombre=%q cedula=%q",
				tc.text, got, tc.wantNombre, tc.wantCedula)
		}
	}
}

func TestParseRegistroMatrimonio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"11-2023-1234567", "11-2023-1234567", true},
		{"el registro es 11-2023-1234567 por favor", "11-2023-1234567", true},
		{"11234567", "11234567", true},
		{"mi número es 12345678901", "12345678901", true},
		{"uno uno guión dos cero dos tres guión uno dos tres cuatro cinco seis siete",
			"11-2023-1234567", true},
		{"abc", "", false},
		{"123", "", false},
		{"123456", "", false}, // six digits, below the short form minimum
	}
	for _, tc := range tests {
		got, ok := ParseRegistroMatrimonio(tc.text)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseRegistroMatrimonio(%q) = %q/%v, want %q/%v",
				tc.text, got, ok, tc.want, tc.ok)
		}
	}
}
