package query

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/snapspend-backend/internal/analytics/types"
	"github.com/angelmondragon/snapspend-backend/pkg/enums"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

// MonthLayout keys monthly buckets.
const MonthLayout = "2006-01"

// Summarize aggregates receipts into a summary. It is pure: the same input
// always yields the same output, apart from GeneratedAt which the caller sets.
func Summarize(receipts []receipt.Receipt, topStores int) types.Summary {
	out := types.Summary{
		TotalSpent:    decimal.Zero,
		TotalSaved:    decimal.Zero,
		TotalOriginal: decimal.Zero,
		TotalTax:      decimal.Zero,
		ByCategory:    []types.LabelValue{},
		ByMonth:       []types.MonthPoint{},
		TopStores:     []types.StoreTotal{},
		Currencies:    []string{},
	}

	categories := map[enums.Category]decimal.Decimal{}
	months := map[string]*types.MonthPoint{}
	stores := map[string]*types.StoreTotal{}
	currencies := map[string]struct{}{}

	for _, r := range receipts {
		spent := r.ActualAmountSpent()
		saved := r.Savings()

		out.ReceiptCount++
		out.TotalSpent = out.TotalSpent.Add(spent)
		out.TotalSaved = out.TotalSaved.Add(saved)
		out.TotalOriginal = out.TotalOriginal.Add(r.OriginalPrice())
		out.TotalTax = out.TotalTax.Add(r.TotalTax)

		for _, item := range r.Items {
			if item.IsDiscount {
				continue
			}
			cat := enums.NormalizeCategory(item.Category)
			categories[cat] = categories[cat].Add(item.Price)
		}

		monthKey := r.PurchaseDate.UTC().Format(MonthLayout)
		point, ok := months[monthKey]
		if !ok {
			point = &types.MonthPoint{Month: monthKey, Spent: decimal.Zero, Saved: decimal.Zero}
			months[monthKey] = point
		}
		point.Spent = point.Spent.Add(spent)
		point.Saved = point.Saved.Add(saved)
		point.ReceiptCount++

		name := strings.TrimSpace(r.StoreName)
		if name != "" {
			key := strings.ToLower(name)
			store, ok := stores[key]
			if !ok {
				store = &types.StoreTotal{StoreName: name, Spent: decimal.Zero}
				stores[key] = store
			}
			store.Spent = store.Spent.Add(spent)
			store.ReceiptCount++
		}

		if c := strings.ToUpper(strings.TrimSpace(r.Currency)); c != "" {
			currencies[c] = struct{}{}
		}
	}

	for _, cat := range enums.Categories() {
		if total, ok := categories[cat]; ok {
			out.ByCategory = append(out.ByCategory, types.LabelValue{Label: cat.String(), Value: total})
		}
	}
	sort.SliceStable(out.ByCategory, func(i, j int) bool {
		return out.ByCategory[i].Value.GreaterThan(out.ByCategory[j].Value)
	})

	for _, point := range months {
		out.ByMonth = append(out.ByMonth, *point)
	}
	sort.Slice(out.ByMonth, func(i, j int) bool {
		return out.ByMonth[i].Month < out.ByMonth[j].Month
	})

	for _, store := range stores {
		out.TopStores = append(out.TopStores, *store)
	}
	sort.Slice(out.TopStores, func(i, j int) bool {
		a, b := out.TopStores[i], out.TopStores[j]
		if !a.Spent.Equal(b.Spent) {
			return a.Spent.GreaterThan(b.Spent)
		}
		return a.StoreName < b.StoreName
	})
	if topStores > 0 && len(out.TopStores) > topStores {
		out.TopStores = out.TopStores[:topStores]
	}

	for c := range currencies {
		out.Currencies = append(out.Currencies, c)
	}
	sort.Strings(out.Currencies)

	return out
}
