package outbox

const activityLoggedSchema = `{
  "type": "object",
  "title": "PetActivityLogged",
  "properties": {
    "activity_id": {"type": "string"},
    "pet_name": {"type": "string", "maxLength": 50},
    "type": {"type": "string", "enum": ["walk", "meal", "medication"]},
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "pet_name", "type", "amount", "occurred_at", "recorded_at"],
  "additionalProperties": false
}`
