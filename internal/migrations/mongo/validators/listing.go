package validators

import "go.mongodb.org/mongo-driver/bson"

var ListingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"owner_id",
			"booking_id",
			"mode",
			"status",
			"lock_version",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"booking_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"mode": bson.M{
				"enum": []string{"exclusive", "auction"},
			},

			"status": bson.M{
				"enum": []string{"open", "committed", "cancelled", "completed"},
			},

			"title": bson.M{
				"bsonType":  "string",
				"maxLength": 200,
			},

			"auction_deadline": bson.M{
				"bsonType": "date",
			},

			"auction_closed_at": bson.M{
				"bsonType": "date",
			},

			"lock_version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
