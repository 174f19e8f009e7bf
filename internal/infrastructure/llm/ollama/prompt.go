package ollama

// buildExtractionPrompt asks for the renewal terms of one contract. Text is
// already truncated by the caller.
func buildExtractionPrompt(text string) string {
	return `You extract renewal and cancellation terms from contracts.
Return one strict JSON object with these keys:
vendor_name (string or null): the counterparty providing the service.
end_date (string "YYYY-MM-DD" or null): when the current term ends.
notice_days (integer or null): days of notice required before end_date to cancel.
auto_renews (boolean or null): true when the contract renews unless cancelled.
renewal_term_months (integer or null): length of each renewal term.
cancellation_deadline (string "YYYY-MM-DD" or null): explicit last day to cancel, if stated.
renewal_clauses (array of strings): verbatim renewal clauses.
penalty_clauses (array of strings): verbatim early termination or penalty clauses.
key_dates (array of objects with "date" ("YYYY-MM-DD" or null) and "description" (string)).
summary (string or null): two sentences about the contract.
Use null when a value is not stated. No markdown, no extra keys.

Document:
` + text
}
