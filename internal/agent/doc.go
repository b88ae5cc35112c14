// Package agent implements the reasoning-and-acting loop behind the assistant.
//
// An Agent binds a language model client, a tool set and a prompt template.
// Each call to Plan renders the prompt with the scratchpad so far, asks the
// model for the next step and parses the reply into either a tool call or a
// final answer. The Executor drives Plan until a final answer, the iteration
// cap, or the parse-failure budget is reached.
package agent
