package personalize

import (
	"strings"

	"github.com/anotheregi/blastkeun/internal/model"
)

// Render substitutes contact fields into template. Substitution is a single
// literal pass: values containing placeholder tokens are inserted verbatim.
func Render(template string, c model.Contact) string {
	r := strings.NewReplacer(
		"{{name}}", c.Name,
		"{{nama}}", c.Name,
		"{{company}}", c.Company,
		"{{perusahaan}}", c.Company,
		"{{phone}}", c.Phone,
	)
	return r.Replace(template)
}
