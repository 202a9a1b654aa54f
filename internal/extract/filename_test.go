package extract

import "testing"

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		title  string
		author string
	}{
		{
			name:   "author dash title",
			path:   "/books/James Clear - Atomic Habits.pdf",
			title:  "Atomic Habits",
			author: "James Clear",
		},
		{
			name:   "title underscore author",
			path:   "/books/Deep_Work_Cal_Newport.epub",
			title:  "Deep Work Cal",
			author: "Newport",
		},
		{
			name:   "strips parenthesized noise",
			path:   "/books/Thinking Fast and Slow (z-lib.org).pdf",
			title:  "Thinking Fast and Slow",
			author: "",
		},
		{
			name:   "strips bracketed noise",
			path:   "/books/The Pragmatic Programmer [epub].epub",
			title:  "The Pragmatic Programmer",
			author: "",
		},
		{
			name:   "plain filename",
			path:   "/books/meditations.pdf",
			title:  "meditations",
			author: "",
		},
		{
			name:   "hyphens become spaces",
			path:   "/books/the-mythical-man-month.pdf",
			title:  "the mythical man month",
			author: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, author := ParseFilename(tt.path)
			if title != tt.title {
				t.Errorf("title = %q, want %q", title, tt.title)
			}
			if author != tt.author {
				t.Errorf("author = %q, want %q", author, tt.author)
			}
		})
	}
}

func TestTitleFromFilename(t *testing.T) {
	if got := TitleFromFilename("/x/Author - Some Title.pdf"); got != "Some Title" {
		t.Errorf("TitleFromFilename = %q", got)
	}
}
