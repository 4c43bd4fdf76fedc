package userui

import (
	"fmt"
	"html/template"
	"net/http"
)

type templates struct {
	reset  *template.Template
	errorT *template.Template
}

type viewData struct {
	Title string
	Error string
}

type resetViewData struct {
	Title  string
	Token  string
	Error  string
	Notice string
	Done   bool
}

func parseTemplates() (*templates, error) {
	parse := func(files ...string) (*template.Template, error) {
		t, err := template.New("base").ParseFS(assets, files...)
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	resetT, err := parse("templates/layout.html", "templates/reset.html")
	if err != nil {
		return nil, fmt.Errorf("parse reset: %w", err)
	}
	errorT, err := parse("templates/layout.html", "templates/error.html")
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &templates{
		reset:  resetT,
		errorT: errorT,
	}, nil
}

func (t *templates) renderReset(w http.ResponseWriter, status int, data resetViewData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = t.reset.ExecuteTemplate(w, "reset.html", data)
}

func (t *templates) renderError(w http.ResponseWriter, status int, title, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = t.errorT.ExecuteTemplate(w, "error.html", viewData{Title: title, Error: msg})
}
