package usecase

import (
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/kirillkom/platform-qa/internal/core/domain"
)

func TestAssembleContextEmptyReturnsMarker(t *testing.T) {
	assembled := AssembleContext(nil)
	if assembled.Text != NoContextMarker {
		t.Fatalf("expected no-context marker, got %q", assembled.Text)
	}
	if !assembled.Empty || assembled.ResultCount != 0 {
		t.Fatalf("expected empty metadata, got %+v", assembled)
	}
	if assembled.PartiesRepresented == nil {
		t.Fatalf("expected non-nil parties slice")
	}
}

func TestAssembleContextKeepsFirstSeenPartyOrder(t *testing.T) {
	results := []domain.SearchResult{
		{PartyID: 7, PartyName: "Unidad Social Cristiana", PartyCode: "PUSC", Page: 4, Text: "seguridad", Similarity: 0.9},
		{PartyID: 3, PartyName: "Frente Amplio", PartyCode: "FA", Page: 22, Text: "salud", Similarity: 0.8},
		{PartyID: 7, PartyName: "Unidad Social Cristiana", PartyCode: "PUSC", Page: 2, Text: "empleo", Similarity: 0.7},
	}

	assembled := AssembleContext(results)
	if want := []string{"PUSC", "FA"}; !reflect.DeepEqual(assembled.PartiesRepresented, want) {
		t.Fatalf("expected parties %v, got %v", want, assembled.PartiesRepresented)
	}
	if assembled.ResultCount != 3 || assembled.Empty {
		t.Fatalf("unexpected metadata %+v", assembled)
	}

	text := assembled.Text
	pusc := strings.Index(text, "(PUSC)")
	fa := strings.Index(text, "(FA)")
	if pusc < 0 || fa < 0 || pusc > fa {
		t.Fatalf("expected PUSC section before FA section:\n%s", text)
	}

	// Rank order inside the PUSC group, not page order.
	p4 := strings.Index(text, "[Página 4]")
	p2 := strings.Index(text, "[Página 2]")
	if p4 < 0 || p2 < 0 || p4 > p2 {
		t.Fatalf("expected page 4 fragment before page 2 fragment:\n%s", text)
	}
	if p2 > fa {
		t.Fatalf("expected PUSC fragments grouped before FA section:\n%s", text)
	}
}

func TestAssembleContextRendersEveryPartyAndPage(t *testing.T) {
	var results []domain.SearchResult
	for i := 1; i <= 6; i++ {
		results = append(results, domain.SearchResult{
			PartyID:   int64(i),
			PartyCode: "P" + string(rune('A'+i)),
			Page:      i * 10,
			Text:      "fragmento",
		})
	}

	assembled := AssembleContext(results)
	if len(assembled.PartiesRepresented) != 6 {
		t.Fatalf("expected 6 parties, got %v", assembled.PartiesRepresented)
	}
	for _, r := range results {
		if !strings.Contains(assembled.Text, "### "+r.PartyCode) {
			t.Fatalf("missing section for %s", r.PartyCode)
		}
		if !strings.Contains(assembled.Text, "[Página "+strconv.Itoa(r.Page)+"]") {
			t.Fatalf("missing page %d", r.Page)
		}
	}
}

func TestBuildSystemInstructionCarriesGroundingRules(t *testing.T) {
	assembled := AssembleContext([]domain.SearchResult{{PartyID: 5, PartyName: "Liberación Nacional", PartyCode: "PLN", Page: 12, Text: "becas"}})
	system := BuildSystemInstruction(assembled, []string{"PLN"})

	for _, want := range []string{"NUNCA inventes", "[Página X]", "[Páginas X-Y]", "por partido", "Partidos consultados: PLN", "becas"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system instruction missing %q", want)
		}
	}
	if strings.Contains(system, noContextDirective) {
		t.Fatalf("non-empty context must not carry the no-context directive")
	}
}

func TestBuildSystemInstructionEmptyContext(t *testing.T) {
	system := BuildSystemInstruction(AssembleContext(nil), nil)
	if !strings.Contains(system, NoContextMarker) {
		t.Fatalf("expected marker in instruction")
	}
	if !strings.Contains(system, noContextDirective) {
		t.Fatalf("expected no-context directive")
	}
	if !strings.Contains(system, "todos los partidos") {
		t.Fatalf("expected all-parties scope")
	}
}
