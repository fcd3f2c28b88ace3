package prompt

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/lushlocks/chat-service/internal/models"
)

// preamble is the fixed role and behavior section of every system prompt.
const preamble = `You are the shopping assistant for a luxury hair-extension boutique.
You help visitors choose bundles, closures, frontals and wigs from our catalog.

Guidelines:
- Stay on topic: hair products, textures, origins, care and styling.
- If a visitor asks about something unrelated, politely steer the conversation back to our products.
- Never disclose wholesale pricing, supplier terms or any internal business data.
- For questions about a specific order, ask the visitor to contact our support team.
- Keep answers to 2-4 sentences unless the visitor asks for detail.`

// snapshot holds one immutable view of the catalog. Updates build a new
// snapshot and swap the pointer so a concurrent Build never observes a
// half-applied replacement.
type snapshot struct {
	products []models.Product
	origins  []models.Origin
}

// Builder assembles the system instruction injected into every LLM call.
// Safe for concurrent use.
type Builder struct {
	current atomic.Pointer[snapshot]
}

// NewBuilder creates a Builder with an empty catalog.
func NewBuilder() *Builder {
	b := &Builder{}
	b.current.Store(&snapshot{})
	return b
}

// UpdateProducts replaces the product snapshot. Last write wins.
func (b *Builder) UpdateProducts(products []models.Product) {
	for {
		old := b.current.Load()
		next := &snapshot{
			products: append([]models.Product(nil), products...),
			origins:  old.origins,
		}
		if b.current.CompareAndSwap(old, next) {
			return
		}
	}
}

// UpdateOrigins replaces the origin snapshot. Last write wins.
func (b *Builder) UpdateOrigins(origins []models.Origin) {
	for {
		old := b.current.Load()
		next := &snapshot{
			products: old.products,
			origins:  append([]models.Origin(nil), origins...),
		}
		if b.current.CompareAndSwap(old, next) {
			return
		}
	}
}

// Build returns the full system prompt for the current catalog snapshot.
func (b *Builder) Build() string {
	snap := b.current.Load()

	var sb strings.Builder
	sb.WriteString(preamble)

	if len(snap.products) > 0 {
		sb.WriteString("\n\nCurrent catalog:\n")
		for _, p := range snap.products {
			fmt.Fprintf(&sb, "- %s: %s (origin: %s, texture: %s, type: %s, length: %s, price: $%.2f)\n",
				p.Name, p.Description, p.Origin, p.Texture, p.Type, p.Length, p.Price)
		}
	}

	if len(snap.origins) > 0 {
		sb.WriteString("\nHair origins:\n")
		for _, o := range snap.origins {
			region := o.Region
			if region == "" {
				region = "various regions"
			}
			fmt.Fprintf(&sb, "- %s (%s): %s\n", o.Country, region, o.Description)
		}
	}

	return sb.String()
}
