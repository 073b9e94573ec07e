package validators

import "go.mongodb.org/mongo-driver/bson"

var OutboxValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"event_type",
			"aggregate_id",
			"payload",
			"status",
			"attempts",
			"next_attempt_at",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"event_type": bson.M{
				"bsonType": "string",
				"pattern":  `^swap\.(proposal|listing|auction)\.[a-z_]+$`,
			},

			"aggregate_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"recipient_ids": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
				},
			},

			"payload": bson.M{
				"bsonType": "object",
			},

			"status": bson.M{
				"enum": []string{"pending", "delivered", "failed"},
			},

			"attempts": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"next_attempt_at": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"delivered_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
