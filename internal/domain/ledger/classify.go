package ledger

// Classifier assigns a Direction to one event. Implementations must be pure:
// the result depends on the event alone.
type Classifier interface {
	Classify(e MovementEvent) Direction
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(e MovementEvent) Direction

// Classify implements Classifier.
func (f ClassifierFunc) Classify(e MovementEvent) Direction { return f(e) }

// LegacyClassifier reproduces the rule the stock records were built with:
// an event is inbound when it has no invoice reference, or when it comes from
// the import or local purchase feeds. Everything else is outbound.
//
// A DISPATCH without an invoice reference is therefore counted as inbound.
// Changing that alters historical totals, so it stays until product owners decide.
var LegacyClassifier Classifier = ClassifierFunc(classifyLegacy)

func classifyLegacy(e MovementEvent) Direction {
	if !e.HasInvoiceRef() || e.Origin == OriginImport || e.Origin == OriginLocalPurchase {
		return DirectionIn
	}
	return DirectionOut
}

// IsAmbiguous reports whether the legacy rule classifies e against its origin,
// i.e. a dispatch without an invoice reference.
func IsAmbiguous(e MovementEvent) bool {
	return e.Origin == OriginDispatch && !e.HasInvoiceRef()
}
