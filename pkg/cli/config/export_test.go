package config

import "time"

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

// NewAssistantForTest creates an Assistant config for testing purposes
func NewAssistantForTest(configPath string, conversation, userMemory, summary, total, interval int) *Assistant {
	return &Assistant{
		configPath:         configPath,
		conversationBudget: conversation,
		userMemoryBudget:   userMemory,
		summaryBudget:      summary,
		totalBudget:        total,
		summaryInterval:    interval,
		agentTimeout:       60 * time.Second,
	}
}

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string) *Gemini {
	return &Gemini{
		projectID: projectID,
		location:  location,
	}
}

// NewIntegrationsForTest creates an Integrations config for testing purposes
func NewIntegrationsForTest(gmail, calendar, docs, notion, github string) *Integrations {
	return &Integrations{
		gmailToken:    gmail,
		calendarToken: calendar,
		docsToken:     docs,
		notionToken:   notion,
		githubToken:   github,
	}
}
