package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/platform-qa/internal/core/domain"
)

// NoContextMarker replaces the context block when retrieval found nothing.
// The system instruction tells the model to answer that no information exists.
const NoContextMarker = "[SIN CONTEXTO RELEVANTE] No se encontraron fragmentos de las plataformas relacionados con esta pregunta."

type partyGroup struct {
	id      int64
	name    string
	code    string
	results []domain.SearchResult
}

// AssembleContext groups results by party in first-seen order, keeps the
// retrieval rank inside each group and renders every fragment with its page.
func AssembleContext(results []domain.SearchResult) domain.AssembledContext {
	if len(results) == 0 {
		return domain.AssembledContext{
			Text:               NoContextMarker,
			ResultCount:        0,
			PartiesRepresented: []string{},
			Empty:              true,
		}
	}

	groups := make([]*partyGroup, 0, 4)
	byParty := make(map[int64]*partyGroup, 4)
	for _, result := range results {
		group, ok := byParty[result.PartyID]
		if !ok {
			group = &partyGroup{id: result.PartyID, name: result.PartyName, code: result.PartyCode}
			byParty[result.PartyID] = group
			groups = append(groups, group)
		}
		group.results = append(group.results, result)
	}

	var b strings.Builder
	parties := make([]string, 0, len(groups))
	fragment := 0
	for gi, group := range groups {
		if gi > 0 {
			b.WriteString("\n")
		}
		label := partyLabel(group)
		parties = append(parties, label)
		b.WriteString(fmt.Sprintf("### %s\n", partyHeading(group)))
		for _, result := range group.results {
			fragment++
			b.WriteString(fmt.Sprintf("\n[Página %d] (fragmento %d, similitud %.3f)\n", result.Page, fragment, result.Similarity))
			b.WriteString(strings.TrimSpace(result.Text))
			b.WriteString("\n")
		}
	}

	return domain.AssembledContext{
		Text:               b.String(),
		ResultCount:        len(results),
		PartiesRepresented: parties,
		Empty:              false,
	}
}

func partyLabel(group *partyGroup) string {
	if code := strings.TrimSpace(group.code); code != "" {
		return code
	}
	if name := strings.TrimSpace(group.name); name != "" {
		return name
	}
	return fmt.Sprintf("party-%d", group.id)
}

func partyHeading(group *partyGroup) string {
	name := strings.TrimSpace(group.name)
	code := strings.TrimSpace(group.code)
	switch {
	case name != "" && code != "":
		return fmt.Sprintf("%s (%s)", name, code)
	case name != "":
		return name
	default:
		return partyLabel(group)
	}
}
