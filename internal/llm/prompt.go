package llm

import (
	"fmt"
	"strings"

	"github.com/taxquill/taxquill/internal/catalog"
	"github.com/taxquill/taxquill/internal/model"
)

// systemPrompt pins the response format. Both providers send it verbatim.
const systemPrompt = "You are a Schedule C expense classifier for sole proprietors. " +
	"You MUST respond with ONLY a valid JSON object. Do not include any explanatory text, " +
	"markdown formatting, or commentary before or after the JSON. " +
	"Start your response directly with { and end with }."

// buildPrompt creates the classification prompt for one transaction.
// Transactions with no vendor or description are still classified from
// amount and date alone.
func buildPrompt(txn model.Transaction) string {
	var details strings.Builder
	if txn.Vendor != "" {
		fmt.Fprintf(&details, "Vendor: %s\n", txn.Vendor)
	}
	fmt.Fprintf(&details, "Amount: $%.2f\n", txn.Amount)
	fmt.Fprintf(&details, "Date: %s\n", txn.Date.Format("2006-01-02"))
	fmt.Fprintf(&details, "Kind: %s\n", txn.Kind)
	if txn.Description != "" {
		fmt.Fprintf(&details, "Description: %s\n", txn.Description)
	}

	var categoryList strings.Builder
	for _, cat := range catalog.All() {
		fmt.Fprintf(&categoryList, "- %s (Schedule C line %s): %s\n",
			cat.Name, cat.ScheduleCLine, cat.Description)
	}

	return fmt.Sprintf(`Classify this business transaction into exactly one of the categories below.

Transaction Details:
%s
Categories:
%s
Respond with this JSON shape:
{
  "category": "<category name from the list>",
  "line": "<that category's Schedule C line>",
  "confidence": <0.0-1.0>,
  "reasoning": "<1-2 sentences explaining the classification>",
  "isMeal": <true if this is a business meal>,
  "isTravel": <true if this occurred during business travel>,
  "quickLabels": ["<3-4 short business-purpose labels a user could pick with one click>"]
}

Classify by what the transaction IS, not by assumed intent. If vendor and
description are missing, infer the most likely category from amount and date
and lower your confidence accordingly.`,
		details.String(),
		categoryList.String())
}
