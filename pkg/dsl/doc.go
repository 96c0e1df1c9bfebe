/*
Package dsl provides a Go DSL for programmatically constructing AutoFlow workflows.

It allows developers to define workflows using a type-safe, fluent builder instead of
hand-writing node and edge lists in JSON or YAML. This is particularly useful for
tests, seeding and generated workflows.

Example usage:

	b := dsl.New("price-alert", "Price Alert")

	b.Trigger("start").Filter("ops@example.com").To("prices")
	b.Fetch("prices").URL("https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd").To("summary")
	b.Transform("summary").Instruction("Summarize: {{externalData}}").To("mail", "chat")
	b.Email("mail").ToEmail("ops@example.com")
	b.WhatsApp("chat").ToPhone("+1 555 0100")

	wf, err := b.Build()
*/
package dsl
