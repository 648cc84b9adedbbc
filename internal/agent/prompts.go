// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import "fmt"

const analystSystemPrompt = "You are a database analyst. Your goal is to answer the user's prompt by generating and executing a SQL SELECT statement using the available tools."

func selectionPrompt(resources, question, rejected string) string {
	retry := ""
	if rejected != "" {
		retry = fmt.Sprintf("- Your previous answer %q is not one of the listed URIs. Pick a URI exactly as listed.\n", rejected)
	}
	return fmt.Sprintf(`
You are an expert at selecting the correct data source to answer a user's query.
Based on the user's request, choose the single most appropriate resource from the list below.

%s

### User Prompt:
%s

### Instructions:
- Analyze the user's prompt and the resource descriptions.
- Respond with ONLY the URI of the best resource to use. Never include any other text or explanation.
%s`, resources, question, retry)
}

func analystPrompt(title, uri, context, question string) string {
	return fmt.Sprintf(`
### %s:
(This data was retrieved from the resource '%s')
%s

### User Prompt:
%s

### Instructions:
1. Analyze the user's prompt and the provided database schema to determine what data they are requesting.
2. Formulate a SQL SELECT query to answer the prompt.
3. Use JOINs where appropriate (not everywhere) to connect tables using foreign key relationships
4. Include relevant columns based on the user prompt.
5. Use the available tools to execute the SQL SELECT query.
6. Based on the result of the tool, provide a final, natural-language answer to the user.
`, title, uri, context, question)
}
