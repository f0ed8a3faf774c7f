package template

import "testing"

func TestSimpleRenderer_Substitutes(t *testing.T) {
	r := NewSimpleRenderer()

	out, err := r.Render("Hi {{name}}, welcome to {{ product }}!", map[string]string{
		"name":    "Ada",
		"product": "Mailblast",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hi Ada, welcome to Mailblast!" {
		t.Errorf("got %q", out)
	}
}

func TestSimpleRenderer_UnmatchedLeftVerbatim(t *testing.T) {
	r := NewSimpleRenderer()

	out, err := r.Render("Hi {{name}}, your code is {{code}}.", map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hi Ada, your code is {{code}}." {
		t.Errorf("unmatched placeholder rewritten: %q", out)
	}
}

func TestSimpleRenderer_EmptyValueIsAMatch(t *testing.T) {
	r := NewSimpleRenderer()

	out, err := r.Render("[{{name}}]", map[string]string{"name": ""})
	if err != nil {
		t.Fatal(err)
	}
	if out != "[]" {
		t.Errorf("got %q, empty value should substitute", out)
	}
}

func TestSimpleRenderer_NilVars(t *testing.T) {
	r := NewSimpleRenderer()

	out, err := r.Render("Hi {{name}}", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hi {{name}}" {
		t.Errorf("got %q", out)
	}
}

func TestSimpleRenderer_DottedAndDashedKeys(t *testing.T) {
	r := NewSimpleRenderer()

	out, err := r.Render("{{user.first-name}} / {{user_id}}", map[string]string{
		"user.first-name": "Ada",
		"user_id":         "42",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Ada / 42" {
		t.Errorf("got %q", out)
	}
}

func TestLiquidRenderer_Filters(t *testing.T) {
	r := NewLiquidRenderer()

	out, err := r.Render(`Hello {{ name | default: "Friend" }}, {{ title | titlecase }}`, map[string]string{
		"title": "weekly digest",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello Friend, Weekly Digest" {
		t.Errorf("got %q", out)
	}
}

func TestLiquidRenderer_Conditionals(t *testing.T) {
	r := NewLiquidRenderer()

	tpl := `{% if plan == "pro" %}Thanks for upgrading{% else %}Upgrade today{% endif %}`

	out, err := r.Render(tpl, map[string]string{"plan": "pro"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Thanks for upgrading" {
		t.Errorf("got %q", out)
	}

	out, err = r.Render(tpl, map[string]string{"plan": "free"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Upgrade today" {
		t.Errorf("got %q", out)
	}
}

func TestLiquidRenderer_ParseErrorSurfaces(t *testing.T) {
	r := NewLiquidRenderer()

	if _, err := r.Render(`{% if %}`, nil); err == nil {
		t.Error("expected a parse error")
	}
}
