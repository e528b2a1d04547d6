// Package egress governs every outbound call a documentation service makes:
// completions fanned out across interchangeable LLM backends, and polite,
// robots-compliant crawling of third-party documentation sites.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency or concern (e.g., ratelimit/, redis/, gemini/).
package egress
