package kinds

import (
	"sort"

	"github.com/instalist/instalist-server/internal/domain"
)

// MinAmount is the smallest accepted amount or step.
const MinAmount = 0.001

func name() Field {
	return Field{Name: "name", Type: String, Required: true, NonEmpty: true}
}

func amount(n string) Field {
	return Field{Name: n, Type: Number, Min: MinAmount, HasMin: true, Default: 1.0}
}

func ref(n string, target domain.Kind, required bool, clearFlag string) Field {
	return Field{Name: n, Type: Reference, Target: target, Required: required, ClearFlag: clearFlag}
}

var registry = func() map[domain.Kind]*Schema {
	all := []*Schema{
		{Kind: domain.KindCategory, Path: "categories", Fields: []Field{name()}},
		{Kind: domain.KindUnit, Path: "units", Fields: []Field{name()}},
		{Kind: domain.KindProduct, Path: "products", Fields: []Field{
			name(),
			amount("defaultAmount"),
			amount("stepAmount"),
			ref("unitUUID", domain.KindUnit, false, "removeUnit"),
		}},
		{Kind: domain.KindRecipe, Path: "recipes", Fields: []Field{name()}},
		{Kind: domain.KindIngredient, Path: "ingredients", Fields: []Field{
			ref("recipeUUID", domain.KindRecipe, true, ""),
			ref("productUUID", domain.KindProduct, true, ""),
			amount("amount"),
		}},
		{Kind: domain.KindTag, Path: "tags", Fields: []Field{name()}},
		{Kind: domain.KindTaggedProduct, Path: "taggedproducts", Fields: []Field{
			ref("tagUUID", domain.KindTag, true, ""),
			ref("productUUID", domain.KindProduct, true, ""),
		}},
		{Kind: domain.KindList, Path: "lists", Fields: []Field{
			name(),
			ref("categoryUUID", domain.KindCategory, false, "removeCategory"),
		}},
		{Kind: domain.KindEntry, Path: "entries", Fields: []Field{
			ref("listUUID", domain.KindList, true, ""),
			ref("productUUID", domain.KindProduct, true, ""),
			amount("amount"),
			{Name: "priority", Type: Integer, Default: int64(0)},
			{Name: "struck", Type: Bool, Default: false},
		}},
	}
	m := make(map[domain.Kind]*Schema, len(all))
	for _, s := range all {
		s.index()
		m[s.Kind] = s
	}
	return m
}()

// Lookup returns the schema registered for kind.
func Lookup(kind domain.Kind) (*Schema, bool) {
	s, ok := registry[kind]
	return s, ok
}

// All returns every registered schema ordered by path.
func All() []*Schema {
	out := make([]*Schema, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
