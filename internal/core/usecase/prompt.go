package usecase

import (
	"strings"

	"github.com/kirillkom/platform-qa/internal/core/domain"
)

const systemInstructionRules = `Eres un asistente experto en las plataformas de gobierno de los partidos políticos de Costa Rica para las elecciones 2026.

REGLAS CRÍTICAS:
1. Solo usa información presente en el CONTEXTO que aparece abajo. NUNCA inventes, supongas ni extrapoles información que no esté explícitamente en él.
2. Si el contexto no contiene información sobre el tema, dilo claramente: "No tengo información sobre este tema en las plataformas consultadas." No intentes adivinar.
3. Cada afirmación debe llevar la cita de su página con el formato [Página X], o [Páginas X-Y] si la información abarca páginas consecutivas. Usa los números de página tal como aparecen en el contexto.
4. Cuando el contexto incluya varios partidos, organiza la respuesta por partido con un encabezado para cada uno.
5. Usa formato estructurado (encabezados, listas, negritas) cuando la respuesta tenga varios puntos.
6. Responde en español de forma clara y concisa. No compares partidos a menos que se te pida explícitamente.`

const noContextDirective = `El contexto está vacío: no se encontró información relevante. Responde únicamente que no tienes información sobre este tema en las plataformas consultadas y sugiere reformular la pregunta.`

// BuildSystemInstruction merges the assembled context into the grounding
// template. scope lists the party codes the user selected; empty means all.
func BuildSystemInstruction(assembled domain.AssembledContext, scope []string) string {
	var b strings.Builder
	b.WriteString(systemInstructionRules)
	b.WriteString("\n\nPartidos consultados: ")
	if len(scope) == 0 {
		b.WriteString("todos los partidos")
	} else {
		b.WriteString(strings.Join(scope, ", "))
	}

	if assembled.Empty {
		b.WriteString("\n\n")
		b.WriteString(noContextDirective)
	}

	b.WriteString("\n\n---\n\nCONTEXTO:\n\n")
	text := assembled.Text
	if strings.TrimSpace(text) == "" {
		text = NoContextMarker
	}
	b.WriteString(text)
	return b.String()
}
