package conversation

import (
	"strings"

	"github.com/ferraceros/ferrabot/internal/domain"
)

// BuildPrompt renders prior turns and the new question in the format the
// assistant expects:
//
//	Contexto previo:
//	Usuario: ...
//	Asistente: ...
//	Pregunta: <question>
//
// The context block is omitted when there are no prior turns.
func BuildPrompt(prior []domain.Turn, question string) string {
	var b strings.Builder
	if len(prior) > 0 {
		b.WriteString("Contexto previo:\n")
		for _, t := range prior {
			b.WriteString(string(t.Speaker))
			b.WriteString(": ")
			b.WriteString(t.Text)
			b.WriteByte('\n')
		}
	}
	b.WriteString("Pregunta: ")
	b.WriteString(question)
	return b.String()
}
