package service

import (
	"github.com/tmc/langchaingo/prompts"
)

const (
	// DefaultReplyConstraint 附加在生成请求最前面的长度约束
	DefaultReplyConstraint = "Please write your answer in 2 sentences or less."

	classifySystemPrompt = "You moderate an automated helper that answers posts in an online community. " +
		"Decide whether the post below asks a question or describes a problem that a short, helpful reply could address. " +
		"Announcements, jokes, memes and posts that only share news do not need a reply."
)

var (
	classifyTemplate = prompts.NewPromptTemplate(
		"Title: {{.title}}\n\n{{.body}}",
		[]string{"title", "body"},
	)

	singleTemplate = prompts.NewPromptTemplate(
		"Title: {{.title}}\n\n{{.body}}",
		[]string{"title", "body"},
	)

	withParentTemplate = prompts.NewPromptTemplate(
		"Title: {{.title}}\n\n{{.body}}\n\n"+
			"This post is a repost of the following original post.\n\n"+
			"Original title: {{.parent_title}}\n\n{{.parent_body}}",
		[]string{"title", "body", "parent_title", "parent_body"},
	)
)
