package cloud

import (
	"fmt"

	"github.com/ramparte/deployotron/internal/ops"
)

// GenerateDockerfile produces a workable Dockerfile for a checkout that
// ships without one. Single-stage for interpreted frameworks, multi-stage
// for compiled ones.
func GenerateDockerfile(framework ops.Framework) string {
	port := ops.DefaultPort(framework)

	switch framework {
	case ops.FrameworkNextJS, ops.FrameworkReact, ops.FrameworkVue, ops.FrameworkAngular:
		return fmt.Sprintf(`FROM node:20-alpine
WORKDIR /app
COPY package*.json ./
RUN npm ci || npm install
COPY . .
RUN npm run build
EXPOSE %d
CMD ["npm", "start"]
`, port)

	case ops.FrameworkNode:
		return fmt.Sprintf(`FROM node:20-alpine
WORKDIR /app
COPY package*.json ./
RUN npm ci || npm install
COPY . .
EXPOSE %d
CMD ["npm", "start"]
`, port)

	case ops.FrameworkPython:
		return fmt.Sprintf(`FROM python:3.12-slim
WORKDIR /app
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
EXPOSE %d
CMD ["python", "main.py"]
`, port)

	case ops.FrameworkRuby:
		return fmt.Sprintf(`FROM ruby:3.3-slim
WORKDIR /app
COPY Gemfile* ./
RUN bundle install
COPY . .
EXPOSE %d
CMD ["bundle", "exec", "rails", "server", "-b", "0.0.0.0"]
`, port)

	case ops.FrameworkGo:
		return fmt.Sprintf(`FROM golang:1.24-alpine AS build
WORKDIR /src
COPY . .
RUN go build -o /out/app ./...

FROM alpine:3.20
COPY --from=build /out/app /app
EXPOSE %d
CMD ["/app"]
`, port)

	case ops.FrameworkRust:
		return fmt.Sprintf(`FROM rust:1.79-slim AS build
WORKDIR /src
COPY . .
RUN cargo build --release

FROM debian:bookworm-slim
COPY --from=build /src/target/release/* /usr/local/bin/
EXPOSE %d
CMD ["sh", "-c", "exec $(ls /usr/local/bin | head -1)"]
`, port)

	default:
		return fmt.Sprintf(`FROM alpine:3.20
WORKDIR /app
COPY . .
EXPOSE %d
CMD ["sh", "-c", "echo 'no start command configured' && sleep infinity"]
`, port)
	}
}
