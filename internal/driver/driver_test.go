package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocator(t *testing.T) {
	cases := []struct {
		expr string
		want Locator
	}{
		{`input[name="username"]`, Locator{By: ByCSS, Expr: `input[name="username"]`}},
		{`//button[@type="submit"]`, Locator{By: ByXPath, Expr: `//button[@type="submit"]`}},
		{`(//div[@role="dialog"])[1]`, Locator{By: ByXPath, Expr: `(//div[@role="dialog"])[1]`}},
		{`.//span`, Locator{By: ByXPath, Expr: `.//span`}},
		{`xpath=//a`, Locator{By: ByXPath, Expr: `//a`}},
		{`css=.profile`, Locator{By: ByCSS, Expr: `.profile`}},
		{`  div.modal  `, Locator{By: ByCSS, Expr: `div.modal`}},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLocator(tc.expr))
		})
	}
}

func TestTextsScriptQuotesExpression(t *testing.T) {
	css := textsScript(Locator{By: ByCSS, Expr: `span[title="a value"]`})
	assert.Contains(t, css, `querySelectorAll`)
	assert.Contains(t, css, `\"a value\"`)

	xp := textsScript(Locator{By: ByXPath, Expr: `//span`})
	assert.Contains(t, xp, `document.evaluate`)
}
