package domain

// ComputeCartTotals derives the rolled-up amounts from the current cart lines
// and the applied promotion. Totals are never stored authoritatively; callers
// recompute them whenever the cart is read or mutated.
func ComputeCartTotals(items []CartItem, promo *CartPromotion) CartTotals {
	totals := CartTotals{}
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		totals.Quantity += item.Quantity
		totals.Subtotal += item.UnitPrice * int64(item.Quantity)
	}
	if promo != nil && promo.Applied {
		totals.Discount = promo.DiscountAmount
		if totals.Discount > totals.Subtotal {
			totals.Discount = totals.Subtotal
		}
	}
	totals.Total = totals.Subtotal - totals.Discount
	return totals
}
