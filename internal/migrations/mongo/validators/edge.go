package validators

import "go.mongodb.org/mongo-driver/bson"

var EdgeValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"source_listing_id",
			"target_listing_id",
			"source_owner_id",
			"target_owner_id",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"source_listing_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"target_listing_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"source_owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"target_owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"status": bson.M{
				"enum": []string{"active", "accepted", "rejected", "cancelled", "expired"},
			},

			"message": bson.M{
				"bsonType":  "string",
				"maxLength": 1000,
			},

			"conditions": bson.M{
				"bsonType": "array",
				"maxItems": 20,
				"items": bson.M{
					"bsonType":  "string",
					"minLength": 1,
					"maxLength": 200,
				},
			},

			"cash_offer": bson.M{
				"bsonType": "object",
				"required": []string{"amount_minor", "currency"},
				"properties": bson.M{
					"amount_minor": bson.M{
						"bsonType": []string{"int", "long"},
						"minimum":  1,
					},
					"currency": bson.M{
						"bsonType":  "string",
						"minLength": 3,
						"maxLength": 3,
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},

			"resolved_at": bson.M{
				"bsonType": "date",
			},

			"resolution": bson.M{
				"bsonType":  "string",
				"maxLength": 64,
			},
		},
	},
}
