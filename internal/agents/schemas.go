package agents

import "encoding/json"

var (
	fragmentContextSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "fragments": {"type": "array", "items": {"type": "object", "properties": {
      "id": {"type": "string"}, "summary": {"type": "string"},
      "tags": {"type": "array", "items": {"type": "string"}}}, "required": ["id"]}},
    "clusters": {"type": "array", "items": {"type": "object", "properties": {
      "theme": {"type": "string"},
      "fragmentIds": {"type": "array", "items": {"type": "string"}}}, "required": ["theme", "fragmentIds"]}}
  },
  "required": ["fragments"]
}`)

	proposalSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "puzzleType": {"type": "string", "enum": ["CLARIFY", "EXPAND", "REFINE"]},
    "centralQuestion": {"type": "string"},
    "rationale": {"type": "string"},
    "primaryModes": {"type": "array", "items": {"type": "string", "enum": ["FORM", "MOTION", "EXPRESSION", "FUNCTION"]}}
  },
  "required": ["puzzleType", "centralQuestion"]
}`)

	suggestionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "shouldSuggest": {"type": "boolean"},
    "puzzleType": {"type": "string", "enum": ["CLARIFY", "EXPAND", "REFINE"]},
    "centralQuestion": {"type": "string"},
    "rationale": {"type": "string"},
    "clusterIds": {"type": "array", "items": {"type": "string"}}
  }
}`)

	designSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "centralQuestion": {"type": "string"},
    "startingAnchor": {"type": "string"},
    "solutionAnchor": {"type": "string"},
    "pieces": {"type": "array", "items": {"type": "object", "properties": {
      "mode": {"type": "string", "enum": ["FORM", "MOTION", "EXPRESSION", "FUNCTION"]},
      "text": {"type": "string"}, "category": {"type": "string"},
      "fragmentIds": {"type": "array", "items": {"type": "string"}}}, "required": ["mode", "text"]}}
  },
  "required": ["centralQuestion", "startingAnchor", "pieces"]
}`)

	quadrantSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "pieces": {"type": "array", "items": {"type": "object", "properties": {
      "text": {"type": "string"}, "category": {"type": "string"},
      "fragmentIds": {"type": "array", "items": {"type": "string"}}}, "required": ["text"]}}
  },
  "required": ["pieces"]
}`)

	questionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {"centralQuestion": {"type": "string"}},
  "required": ["centralQuestion"]
}`)

	summarySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "directionStatement": {"type": "string"},
    "reasons": {"type": "array", "items": {"type": "string"}},
    "openQuestions": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["directionStatement"]
}`)
)
