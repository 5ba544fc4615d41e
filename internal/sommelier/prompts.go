package sommelier

import (
	"fmt"
	"strings"

	"github.com/pbaille/winewize/internal/domain"
)

const systemPrompt = "You are an experienced restaurant sommelier. You answer with JSON only."

const extractionSchema = `Return a JSON object with this structure:
{
  "restaurant_name": "name printed on the menu, or empty",
  "menu_items": [
    {"name": "Dish name", "description": "short description", "price": 24.5, "category": "main"}
  ],
  "wines": [
    {"name": "Wine name", "producer": "", "vintage": "2019", "region": "", "varietal": "", "style": "red", "price": 58}
  ]
}

Rules:
- category is one of: starter, main, dessert, side, other
- style is one of: red, white, rose, sparkling, dessert, fortified (or empty if unknown)
- price is a number without currency symbols; use 0 when no price is shown
- Use empty arrays when the page contains no dishes or no wines
- Do not invent items that are not on the page

Return ONLY the JSON, no other text.`

func buildExtractionPrompt(source string) string {
	var sb strings.Builder
	sb.WriteString("Extract every dish and every wine from this ")
	sb.WriteString(source)
	sb.WriteString(". It may be a food menu, a wine list, or both.\n\n")
	sb.WriteString(extractionSchema)
	return sb.String()
}

func buildPairingPrompt(dishes []domain.MenuItem, wines []domain.Wine, preferences string) string {
	var sb strings.Builder

	sb.WriteString("Recommend the best wine from the list below for each selected dish.\n\n")

	sb.WriteString("Selected dishes:\n")
	for _, d := range dishes {
		sb.WriteString("- ")
		sb.WriteString(d.Name)
		if d.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(d.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nAvailable wines (recommend ONLY from this list, using the exact name):\n")
	for _, w := range wines {
		sb.WriteString("- ")
		sb.WriteString(w.Name)
		var details []string
		for _, s := range []string{w.Producer, w.Vintage, w.Region, w.Varietal, w.Style} {
			if s != "" {
				details = append(details, s)
			}
		}
		if len(details) > 0 {
			sb.WriteString(" (")
			sb.WriteString(strings.Join(details, ", "))
			sb.WriteString(")")
		}
		if w.Price > 0 {
			sb.WriteString(fmt.Sprintf(" - %.2f", w.Price))
		}
		sb.WriteString("\n")
	}

	if p := strings.TrimSpace(preferences); p != "" {
		sb.WriteString("\nDiner preferences: ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}

	sb.WriteString(`
Return a JSON object with this structure:
{
  "pairings": [
    {"dish": "Dish name", "wine": "Exact wine name from the list", "reason": "one or two sentences", "score": 0.9}
  ]
}

Rules:
- One pairing per selected dish
- score is 0.0-1.0: how well the wine suits the dish
- Keep reasons short and specific to the flavours involved

Return ONLY the JSON, no other text.`)

	return sb.String()
}
